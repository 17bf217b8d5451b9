package errors

import "net/http"

// Codes carried by every typed error. They travel to HTTP clients in the
// error body and to peers in build-error events.
const (
	CodeInternal           = "INTERNAL"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeTimeout            = "TIMEOUT"
	CodeUnavailable        = "UNAVAILABLE"
	CodeStorageError       = "STORAGE_ERROR"
	CodeNetworkError       = "NETWORK_ERROR"
	CodeSerializationError = "SERIALIZATION_ERROR"
)

var statusByCode = map[string]int{
	CodeValidation:  http.StatusBadRequest,
	CodeNotFound:    http.StatusNotFound,
	CodeConflict:    http.StatusConflict,
	CodeTimeout:     http.StatusGatewayTimeout,
	CodeUnavailable: http.StatusServiceUnavailable,
}

// StatusCode maps err to the status the sync server answers with.
// Errors without a code are 500.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if status, ok := statusByCode[CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
