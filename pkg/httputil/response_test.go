package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	type lock struct {
		FieldID string `json:"field_id"`
	}
	tests := []struct {
		name     string
		code     int
		data     any
		wantBody string
	}{
		{name: "empty list", code: http.StatusOK, data: []lock{}, wantBody: `[]`},
		{name: "locks", code: http.StatusOK, data: []lock{{FieldID: "posts.title"}}, wantBody: `[{"field_id":"posts.title"}]`},
		{name: "created", code: http.StatusCreated, data: map[string]any{"accepted": true}, wantBody: `{"accepted":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.code, tt.data)

			if w.Code != tt.code {
				t.Errorf("WriteJSON() status = %v, want %v", w.Code, tt.code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("WriteJSON() Content-Type = %v, want application/json", ct)
			}

			var got, want any
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			_ = json.Unmarshal([]byte(tt.wantBody), &want)
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("WriteJSON() body = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w)
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("WriteSuccess() = %d %v", w.Code, body)
	}
}
