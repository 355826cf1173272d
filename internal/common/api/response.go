package api

import (
	"encoding/json"
	"net/http"
)

// failureEnvelope is the uniform failure shape.
type failureEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes payload with success: true folded into the top
// level, so handlers return flat {"success": true, ...} objects.
func WriteSuccess(w http.ResponseWriter, status int, payload interface{}) {
	body := map[string]json.RawMessage{
		"success": json.RawMessage("true"),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			WriteFailure(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			WriteFailure(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		for k, v := range fields {
			if k != "success" {
				body[k] = v
			}
		}
	}
	WriteJSON(w, status, body)
}

// WriteFailure writes the {success: false, error: message} envelope.
func WriteFailure(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, failureEnvelope{Success: false, Error: message})
}

// BadRequest writes a 400 response
func BadRequest(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusBadRequest, message)
}

// NotFound writes a 404 response
func NotFound(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusNotFound, message)
}

// InternalError writes a 500 response
func InternalError(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusInternalServerError, message)
}

// NotFoundHandler answers unmapped routes with the failure envelope.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, "Route not found")
	}
}
