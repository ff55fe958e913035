package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type staticGate struct{ valid string }

func (g staticGate) IsValid(_ context.Context, key string) bool { return key == g.valid }

func newProtectedServer() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return APIKeyAuth(staticGate{valid: "wa_live_good"}, logger)(next)
}

func TestAPIKeyAuth(t *testing.T) {
	handler := newProtectedServer()

	cases := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"bearer header", "Bearer wa_live_good", "", http.StatusNoContent},
		{"apikey header", "ApiKey wa_live_good", "", http.StatusNoContent},
		{"query parameter", "", "wa_live_good", http.StatusNoContent},
		{"missing key", "", "", http.StatusUnauthorized},
		{"wrong key", "Bearer wa_live_bad", "", http.StatusUnauthorized},
		{"unsupported scheme", "Basic wa_live_good", "", http.StatusUnauthorized},
		{"header takes precedence over query", "Bearer wa_live_bad", "wa_live_good", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "/protected"
			if tc.query != "" {
				url += "?access_token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}
