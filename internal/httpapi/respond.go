package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/ammarsys/captchaAPI/internal/logging"
)

// apiError is the wire shape of every non-2xx JSON response.
type apiError struct {
	Type string `json:"type"`
	Code int    `json:"code"`
	Text string `json:"text"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Logger.WithError(err).Error("Failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, text string) {
	respondTypedError(w, status, "error", text)
}

func respondTypedError(w http.ResponseWriter, status int, errType, text string) {
	respondJSON(w, status, apiError{Type: errType, Code: status, Text: text})
}
