package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/view"
)

type stubDirectory struct {
	users []*model.User
	err   error
}

func (s *stubDirectory) ListRecent(_ context.Context, limit int) ([]*model.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.users) > limit {
		return s.users[:limit], nil
	}
	return s.users, nil
}

func (s *stubDirectory) Count(context.Context) (int, error) {
	return len(s.users), s.err
}

func newTestPageHandler(t *testing.T, users *mockUserService, habits *mockHabitService, dir *stubDirectory) *PageHandler {
	t.Helper()
	r, err := view.New()
	if err != nil {
		t.Fatalf("view.New() error: %v", err)
	}
	return NewPageHandler(r, users, habits, dir)
}

func onboardedUser() *model.User {
	return &model.User{
		ID:    "user-1",
		Email: "ana@example.com",
		Name:  "Ana Silva",
		Metadata: model.Metadata{
			model.MetaFirstName:           "Ana",
			model.MetaPhone:               "+15550100",
			model.MetaOnboardingCompleted: true,
		},
	}
}

func TestPageHandler_Dashboard(t *testing.T) {
	habits := &mockHabitService{
		listFn: func(_ context.Context, userID string) ([]model.HabitWithStatus, error) {
			return []model.HabitWithStatus{
				{Habit: model.Habit{ID: "h1", UserID: userID, Name: "Drink <water>", Frequency: model.FrequencyDaily}},
			}, nil
		},
	}
	h := newTestPageHandler(t, &mockUserService{}, habits, &stubDirectory{})

	req := withUser(httptest.NewRequest(http.MethodGet, "/dashboard", nil), onboardedUser())
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: "csrf-123"})
	w := httptest.NewRecorder()
	h.Dashboard(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Good morning, Ana", "Drink &lt;water&gt;", `content="csrf-123"`, "Habit reminder at 20:00"} {
		if !strings.Contains(body, want) {
			t.Errorf("body should contain %q", want)
		}
	}
}

func TestPageHandler_Dashboard_LoadFailure(t *testing.T) {
	users := &mockUserService{
		getPreferencesFn: func(context.Context, string) (*model.Preferences, error) {
			return nil, errors.New("db down")
		},
	}
	h := newTestPageHandler(t, users, &mockHabitService{}, &stubDirectory{})

	w := httptest.NewRecorder()
	h.Dashboard(w, withUser(httptest.NewRequest(http.MethodGet, "/dashboard", nil), onboardedUser()))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestPageHandler_Login_KeepsOnlySafeRedirect(t *testing.T) {
	h := newTestPageHandler(t, &mockUserService{}, &mockHabitService{}, &stubDirectory{})

	tests := []struct {
		query   string
		want    string
		notWant string
	}{
		{query: "?redirect_to=%2Fdashboard%2Fhabits", want: "redirect_to=%2fdashboard%2fhabits"},
		{query: "?redirect_to=https%3A%2F%2Fevil.example", notWant: "evil.example"},
		{query: "", notWant: "redirect_to"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Login(w, httptest.NewRequest(http.MethodGet, "/login"+tt.query, nil))

			body := w.Body.String()
			if tt.want != "" && !strings.Contains(body, tt.want) {
				t.Errorf("body should contain %q", tt.want)
			}
			if tt.notWant != "" && strings.Contains(body, tt.notWant) {
				t.Errorf("body should not contain %q", tt.notWant)
			}
		})
	}
}

func TestPageHandler_Admin(t *testing.T) {
	dir := &stubDirectory{users: []*model.User{
		{ID: "u1", Email: "first@example.com"},
		{ID: "u2", Email: "second@example.com"},
	}}
	h := newTestPageHandler(t, &mockUserService{}, &mockHabitService{}, dir)

	admin := onboardedUser()
	admin.Metadata[model.MetaRole] = model.RoleAdmin
	w := httptest.NewRecorder()
	h.Admin(w, withUser(httptest.NewRequest(http.MethodGet, "/admin", nil), admin))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "2 users") || !strings.Contains(body, "second@example.com") {
		t.Errorf("admin page missing user data: %s", body)
	}
}

func TestPageHandler_AuthError(t *testing.T) {
	h := newTestPageHandler(t, &mockUserService{}, &mockHabitService{}, &stubDirectory{})

	w := httptest.NewRecorder()
	h.AuthError(w, httptest.NewRequest(http.MethodGet, "/auth/auth-code-error", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}
