package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockleague/ledger-engine/internal/model"
	"github.com/stockleague/ledger-engine/internal/policy"
	"github.com/stockleague/ledger-engine/internal/price"
	"github.com/stockleague/ledger-engine/internal/symbol"
)

// TradeRequest is the JSON body for POST /api/v1/trade.
type TradeRequest struct {
	PlayerID string          `json:"player_id"`
	Symbol   string          `json:"symbol"`
	Type     model.EntryType `json:"type"` // "BUY" or "SELL"
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// HandleExecuteTrade handles POST /api/v1/trade.
func (s *Service) HandleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		writeError(w, "player_id is required", http.StatusBadRequest)
		return
	}
	sym, err := symbol.Validate(req.Symbol)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.ExecuteTrade(r.Context(), req.PlayerID, sym, req.Type, req.Quantity, req.Price)
	if err != nil {
		slog.Error("trade execution failed", "player", req.PlayerID, "symbol", sym, "err", err)
		writeError(w, "trade could not be committed", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = rejectionStatus(result.reject)
	}
	writeJSON(w, status, result)
}

// rejectionStatus maps a validation rejection to an HTTP status: malformed
// input is 400, a business rule the current state forbids is 409.
func rejectionStatus(reject error) int {
	switch {
	case errors.Is(reject, ErrInsufficientCash),
		errors.Is(reject, ErrInsufficientShares),
		errors.Is(reject, policy.ErrSingleSymbol):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// HandlePlayerSummary handles GET /api/v1/players/{playerID}/summary.
func (s *Service) HandlePlayerSummary(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	ps, err := s.summaries.Player(r.Context(), playerID)
	if err != nil {
		writeError(w, "failed to load player summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// HandlePositions handles GET /api/v1/players/{playerID}/positions.
func (s *Service) HandlePositions(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	positions, err := s.summaries.PositionsForPlayer(r.Context(), playerID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.PositionSummary{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// HandleLedger handles GET /api/v1/players/{playerID}/ledger, optionally
// filtered by ?symbol=.
func (s *Service) HandleLedger(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	var entries []model.LedgerEntry
	var err error
	if sym := r.URL.Query().Get("symbol"); sym != "" {
		entries, err = s.ledger.EntriesForSymbol(r.Context(), playerID, symbol.Normalize(sym))
	} else {
		entries, err = s.ledger.EntriesForPlayer(r.Context(), playerID)
	}
	if err != nil {
		writeError(w, "failed to load ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// PortfolioPosition is one market-valued holding in a portfolio response.
type PortfolioPosition struct {
	model.PositionSummary
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	MarketValue   *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPnL *decimal.Decimal `json:"unrealized_pnl,omitempty"`
}

// Portfolio is the market-valued view of a player's holdings.
type Portfolio struct {
	PlayerID         string              `json:"player_id"`
	CashBalance      decimal.Decimal     `json:"cash_balance"`
	TotalDeposited   decimal.Decimal     `json:"total_deposited"`
	TotalRealizedPnL decimal.Decimal     `json:"total_realized_pnl"`
	Positions        []PortfolioPosition `json:"positions"`
	TotalMarketValue decimal.Decimal     `json:"total_market_value"`
	TotalValue       decimal.Decimal     `json:"total_value"`  // cash + market value
	OverallPnL       decimal.Decimal     `json:"overall_pnl"`  // totalValue − totalDeposited
}

// HandlePortfolio handles GET /api/v1/players/{playerID}/portfolio. Quotes
// come from the injected Quoter; a symbol with no available quote appears
// without valuation fields rather than failing the whole response.
func (s *Service) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	ctx := r.Context()

	playerSum, err := s.summaries.Player(ctx, playerID)
	if err != nil {
		writeError(w, "failed to load player summary", http.StatusInternalServerError)
		return
	}
	positions, err := s.summaries.PositionsForPlayer(ctx, playerID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	portfolio := Portfolio{
		PlayerID:         playerID,
		CashBalance:      playerSum.CashBalance,
		TotalDeposited:   playerSum.TotalDeposited,
		TotalRealizedPnL: playerSum.TotalRealizedPnL,
		Positions:        make([]PortfolioPosition, 0, len(positions)),
		TotalMarketValue: decimal.Zero,
	}

	for _, pos := range positions {
		pp := PortfolioPosition{PositionSummary: pos}
		if s.quoter != nil {
			if current, err := s.quoter.CurrentPrice(ctx, pos.Symbol); err == nil {
				value := current.Mul(pos.Quantity)
				pnl := value.Sub(pos.TotalCostBasis)
				pp.CurrentPrice = &current
				pp.MarketValue = &value
				pp.UnrealizedPnL = &pnl
				portfolio.TotalMarketValue = portfolio.TotalMarketValue.Add(value)
			} else if !errors.Is(err, price.ErrUnavailable) {
				slog.Warn("quote lookup failed", "symbol", pos.Symbol, "err", err)
			}
		}
		portfolio.Positions = append(portfolio.Positions, pp)
	}

	portfolio.TotalValue = portfolio.CashBalance.Add(portfolio.TotalMarketValue)
	portfolio.OverallPnL = portfolio.TotalValue.Sub(portfolio.TotalDeposited)
	writeJSON(w, http.StatusOK, portfolio)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
