package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPError is the JSON body of a failed sync-server request.
type HTTPError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func toHTTPError(err error, requestID string) HTTPError {
	out := HTTPError{
		Code:      CodeOf(err),
		Message:   GetErrorMessage(err),
		RequestID: requestID,
	}

	details := map[string]string{}
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
	)
	switch {
	case errors.As(err, &validation):
		if validation.Field != "" {
			details["field"] = validation.Field
		}
	case errors.As(err, &notFound):
		details["resource"] = notFound.Resource
		if notFound.ID != "" {
			details["id"] = notFound.ID
		}
	case errors.As(err, &conflict):
		details["resource"] = conflict.Resource
		if conflict.Holder != "" {
			details["holder"] = conflict.Holder
		}
	}
	if len(details) > 0 {
		out.Details = details
	}
	return out
}

// WriteHTTPError answers with err's status and an HTTPError body.
func WriteHTTPError(w http.ResponseWriter, err error, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(err))
	_ = json.NewEncoder(w).Encode(toHTTPError(err, requestID))
}
