package httputil

import (
	"net/http"
	"strings"
)

// QueryParam returns the trimmed query value for key, or fallback when the
// parameter is absent or blank.
func QueryParam(r *http.Request, key, fallback string) string {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	return v
}
