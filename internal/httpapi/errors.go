package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fenilsonani/kvstore/internal/engine"
)

// apiError carries the status this response should use plus a
// client-facing message, keeping the Kind→status mapping spec.md §7
// requires in exactly one function.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

// statusFor maps an engine.Kind to the HTTP status spec.md §7 names.
func statusFor(k engine.Kind) int {
	switch k {
	case engine.KindBadRequest:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case engine.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// engineError wraps any error returned by internal/engine or internal/batch
// into an apiError using the Kind→status mapping.
func engineError(err error) *apiError {
	kind := engine.KindOf(err)
	return &apiError{status: statusFor(kind), message: err.Error()}
}

func badRequestUnauthorized() *apiError {
	return &apiError{status: http.StatusUnauthorized, message: "missing or invalid bearer token"}
}

func badRequest(msg string) *apiError {
	return &apiError{status: http.StatusBadRequest, message: msg}
}

func payloadTooLarge(msg string) *apiError {
	return &apiError{status: http.StatusRequestEntityTooLarge, message: msg}
}

// writeError writes a JSON error body with the apiError's status.
func writeError(w http.ResponseWriter, err *apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.message})
}
