package listingtest

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON writes data as a bare JSON body, the way the listing backend
// answers (no envelope).
func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeText writes a plain-text body. The backend answers errors and deletes
// with short messages rather than JSON.
func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
