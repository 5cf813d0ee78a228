package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/wakr/internal/metrics"
	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/model"
)

// recordingCollector はテスト用に一部のメトリクス呼び出しを記録する。
type recordingCollector struct {
	metrics.Nop
	mu        sync.Mutex
	callbacks []string
	decisions []string
}

func (c *recordingCollector) RecordOAuthCallback(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, result)
}

func (c *recordingCollector) RecordAccessDecision(class, action string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, class+":"+action)
}

// newJSONRequest はJSONボディ付きのリクエストを生成する。
func newJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withUser はリクエストにログイン中のユーザーを注入する。
func withUser(req *http.Request, u *model.User) *http.Request {
	return req.WithContext(middleware.ContextWithIdentity(req.Context(), u))
}

// withUserID はリクエストにユーザーIDのみを注入する。
func withUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

// decodeResponse はレスポンスボディをvにデコードする。
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body %q: %v", w.Body.String(), err)
	}
}

// assertErrorCode はエラーレスポンスのステータスとコードを検証する。
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, status, w.Body.String())
	}
	var body middleware.ErrorResponseBody
	decodeResponse(t, w, &body)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
}

// assertValidation はバリデーションエラーのフィールドと理由を検証する。
func assertValidation(t *testing.T, w *httptest.ResponseRecorder, field, reason string) {
	t.Helper()
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body=%s)", w.Code, w.Body.String())
	}
	var body middleware.ValidationErrorBody
	decodeResponse(t, w, &body)
	if got := body.Details[field]; got != reason {
		t.Errorf("details[%s] = %q, want %q (details=%v)", field, got, reason, body.Details)
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
