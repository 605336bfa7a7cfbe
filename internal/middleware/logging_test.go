package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusForbidden, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		req := httptest.NewRequest("POST", "/api/extract", nil)
		req.RemoteAddr = "9.9.9.9:1000"
		handler.ServeHTTP(httptest.NewRecorder(), req)

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshal log: %v", err)
		}
		if entry["level"] != tt.level {
			t.Errorf("status %d: level = %v, want %s", tt.status, entry["level"], tt.level)
		}
		if entry["path"] != "/api/extract" || entry["remote"] != "9.9.9.9" {
			t.Errorf("unexpected entry %v", entry)
		}
		if int(entry["status"].(float64)) != tt.status {
			t.Errorf("status attr = %v, want %d", entry["status"], tt.status)
		}
	}
}
