package httpapi

import (
	"encoding/json"
	"net/http"

	"npud/internal/manager"
	"npud/pkg/types"
)

// writeWireError maps a pipeline error onto the uniform error envelope
// and returns the status code it chose.
func writeWireError(w http.ResponseWriter, err error) int {
	if we, ok := err.(manager.WireError); ok {
		writeErrorEnvelope(w, we.StatusCode(), we.Type(), we.Code(), we.Error())
		return we.StatusCode()
	}
	writeErrorEnvelope(w, http.StatusInternalServerError, "internal_error", "internal_error", err.Error())
	return http.StatusInternalServerError
}

// writeErrorEnvelope writes the flat OpenAI-style error body.
func writeErrorEnvelope(w http.ResponseWriter, status int, typ, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.OpenAIError{
		Message: msg,
		Type:    typ,
		Code:    code,
	})
}
