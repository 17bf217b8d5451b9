package httputil

import (
	"strings"
	"testing"
)

func TestValidateFieldID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{name: "dotted path", id: "posts.42.title", valid: true},
		{name: "single segment", id: "title", valid: true},
		{name: "empty", id: "", valid: false},
		{name: "contains space", id: "posts title", valid: false},
		{name: "contains newline", id: "posts\ntitle", valid: false},
		{name: "at limit", id: strings.Repeat("a", MaxFieldIDLength), valid: true},
		{name: "over limit", id: strings.Repeat("a", MaxFieldIDLength+1), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateFieldID(tt.id); got != tt.valid {
				t.Errorf("ValidateFieldID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}
