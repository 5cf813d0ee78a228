package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSMiddleware(t *testing.T) {
	mw := NewCORSMiddleware("https://wakr.example.com, https://admin.wakr.example.com/")

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantOrigin  string
		wantStatus  int
		wantHandled bool
	}{
		{name: "allowed origin", method: http.MethodGet, origin: "https://wakr.example.com", wantOrigin: "https://wakr.example.com", wantStatus: http.StatusOK, wantHandled: true},
		{name: "second allowed origin with trailing slash in config", method: http.MethodPost, origin: "https://admin.wakr.example.com", wantOrigin: "https://admin.wakr.example.com", wantStatus: http.StatusOK, wantHandled: true},
		{name: "unknown origin gets no CORS headers", method: http.MethodGet, origin: "https://evil.example.com", wantStatus: http.StatusOK, wantHandled: true},
		{name: "same-origin request without Origin header", method: http.MethodGet, wantStatus: http.StatusOK, wantHandled: true},
		{name: "preflight from allowed origin", method: http.MethodOptions, origin: "https://wakr.example.com", preflight: true, wantOrigin: "https://wakr.example.com", wantStatus: http.StatusNoContent},
		{name: "preflight from unknown origin", method: http.MethodOptions, origin: "https://evil.example.com", preflight: true, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handled := false
			h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handled = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/habits", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if handled != tt.wantHandled {
				t.Errorf("next handler called = %v, want %v", handled, tt.wantHandled)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin != "" && w.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("credentials should be allowed for a matching origin")
			}
			if w.Header().Get("Vary") != "Origin" {
				t.Errorf("Vary = %q, want Origin", w.Header().Get("Vary"))
			}
		})
	}
}
