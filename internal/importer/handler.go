package importer

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/ledger-engine/internal/model"
)

// batchRequest is the JSON body for POST /api/v1/import.
type batchRequest struct {
	Rows []model.ImportRow `json:"rows"`
}

// HandleImportBatch handles POST /api/v1/import. The response enumerates
// per-row outcomes; HTTP 200 means the batch was processed, not that every
// row succeeded.
func (s *Service) HandleImportBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rows are required"})
		return
	}
	report := s.ImportRows(r.Context(), req.Rows)
	writeJSON(w, http.StatusOK, report)
}

// playerRequest is the JSON body for POST /api/v1/import/player.
type playerRequest struct {
	PlayerName string          `json:"player_name"`
	Cash       decimal.Decimal `json:"cash"`
	CashDate   time.Time       `json:"cash_date"`
	Positions  []Position      `json:"positions"`
}

// HandleImportPlayer handles POST /api/v1/import/player: a whole-player
// replace for a single player, returning the created or updated player id.
func (s *Service) HandleImportPlayer(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.PlayerName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "player_name is required"})
		return
	}
	playerID, err := s.ImportPlayer(r.Context(), req.PlayerName, req.Cash, req.CashDate, req.Positions)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"player_id": playerID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
