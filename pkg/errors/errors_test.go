package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation field", NewValidationError("fieldId", "must not be empty", ""), "invalid fieldId: must not be empty"},
		{"validation bare", NewValidationError("", "bad port", 0), "invalid input: bad port"},
		{"not found id", NewNotFoundError("lock", "hero.title"), `lock "hero.title" not found`},
		{"not found bare", NewNotFoundError("profile", ""), "profile not found"},
		{"conflict holder", NewConflictError("host", "10.0.0.5:8081"), "host is already held by 10.0.0.5:8081"},
		{"conflict override", NewConflictError("build", "").WithMessage("a build is already in progress"), "a build is already in progress"},
		{"service cause", NewServiceError("host", "could not connect", errors.New("refused")), "could not connect: refused"},
		{"service default", NewServiceError("host", "", nil), "host unavailable"},
		{"timeout", NewTimeoutError("connect to 10.0.0.5:8081", "10s"), "connect to 10.0.0.5:8081 timed out after 10s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapKeepsKind(t *testing.T) {
	base := NewNotFoundError("document", "pages/home")
	wrapped := Wrap(base, "load document")

	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, "load document", GetErrorMessage(wrapped))
	assert.ErrorIs(t, wrapped, base)
}

func TestWrapPlainError(t *testing.T) {
	wrapped := Wrapf(fmt.Errorf("disk full"), "save %s", "pages")

	assert.Equal(t, CodeInternal, CodeOf(wrapped))
	assert.Equal(t, "save pages: disk full", wrapped.Error())
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, WrapCode(nil, CodeStorageError, "ignored"))
}

func TestKindSurvivesRecoding(t *testing.T) {
	err := WrapCode(NewTimeoutError("dial", ""), CodeNetworkError, "reach host")

	assert.Equal(t, CodeNetworkError, CodeOf(err))
	assert.True(t, IsTimeout(err))
	assert.False(t, IsConflict(err))
	assert.True(t, IsValidation(fmt.Errorf("config: %w", NewValidationError("port", "out of range", 0))))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NewValidationError("name", "required", nil), http.StatusBadRequest},
		{NewNotFoundError("lock", "title"), http.StatusNotFound},
		{NewConflictError("build", ""), http.StatusConflict},
		{NewTimeoutError("connect", "10s"), http.StatusGatewayTimeout},
		{NewServiceError("host", "", nil), http.StatusServiceUnavailable},
		{WrapCode(errors.New("locked"), CodeStorageError, "write kv"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), "%v", tt.err)
	}
}

func TestWriteHTTPError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTPError(rec, NewNotFoundError("lock", "hero.title"), "req-1")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, HTTPError{
		Code:      CodeNotFound,
		Message:   `lock "hero.title" not found`,
		Details:   map[string]string{"resource": "lock", "id": "hero.title"},
		RequestID: "req-1",
	}, body)
}

func TestWriteHTTPErrorUntyped(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTPError(rec, errors.New("boom"), "")

	var body HTTPError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, HTTPError{Code: CodeInternal, Message: "boom"}, body)
}
