package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response already started, nothing we can do
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes the {message, statusCode} error shape used across the gateway.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]any{
		"message":    message,
		"statusCode": status,
	})
}
