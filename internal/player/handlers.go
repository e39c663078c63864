package player

import (
	"encoding/json"
	"errors"
	"net/http"
)

// passwordRequest is the JSON body for POST /api/v1/players/password.
type passwordRequest struct {
	DisplayName string `json:"display_name"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// HandleChangePassword handles POST /api/v1/players/password.
func (r *Registry) HandleChangePassword(w http.ResponseWriter, req *http.Request) {
	var body passwordRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.DisplayName == "" || body.NewPassword == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "display_name and new_password are required"})
		return
	}

	err := r.ChangePassword(req.Context(), body.DisplayName, body.OldPassword, body.NewPassword)
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "player not found"})
	case errors.Is(err, ErrBadCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to change password"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
