package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/repository"
	"github.com/hitoshi/wakr/internal/security"
)

// --- モック ---

type mockUserRepo struct {
	repository.UserRepository // 未使用メソッドは呼ばれない

	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	updateMetadataFn func(ctx context.Context, userID string, patch model.Metadata) error
	deleteByIDFn     func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) UpdateMetadata(ctx context.Context, userID string, patch model.Metadata) error {
	return m.updateMetadataFn(ctx, userID, patch)
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockSessionRepo struct {
	repository.SessionRepository

	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

type mockPrefsRepo struct {
	findFn   func(ctx context.Context, userID string) (*model.Preferences, error)
	upsertFn func(ctx context.Context, prefs *model.Preferences) error
}

func (m *mockPrefsRepo) FindByUserID(ctx context.Context, userID string) (*model.Preferences, error) {
	return m.findFn(ctx, userID)
}

func (m *mockPrefsRepo) Upsert(ctx context.Context, prefs *model.Preferences) error {
	return m.upsertFn(ctx, prefs)
}

type mockHabitDeleter struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockHabitDeleter) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

func newTestService(users *mockUserRepo, sessions *mockSessionRepo, prefs *mockPrefsRepo, habits HabitDeleter) *Service {
	svc := NewService(users, sessions, prefs, habits, security.NewTextSanitizer(), "UTC")
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

// --- CompleteOnboarding ---

func TestService_CompleteOnboarding(t *testing.T) {
	var gotPatch model.Metadata
	users := &mockUserRepo{
		updateMetadataFn: func(_ context.Context, userID string, patch model.Metadata) error {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			gotPatch = patch
			return nil
		},
	}
	svc := newTestService(users, nil, nil, nil)

	err := svc.CompleteOnboarding(context.Background(), "user-1", OnboardingInput{
		FirstName: " Ana ",
		Phone:     "+1 555 010 9999",
		FullName:  "<i>Ana</i> Silva",
	})
	if err != nil {
		t.Fatalf("CompleteOnboarding returned error: %v", err)
	}

	if gotPatch[model.MetaFirstName] != "Ana" {
		t.Errorf("first_name = %v, want Ana", gotPatch[model.MetaFirstName])
	}
	if gotPatch[model.MetaFullName] != "Ana Silva" {
		t.Errorf("full_name = %v, want Ana Silva", gotPatch[model.MetaFullName])
	}
	if gotPatch[model.MetaOnboardingCompleted] != true {
		t.Error("onboarding_completed should be set")
	}
}

func TestService_CompleteOnboarding_Validation(t *testing.T) {
	users := &mockUserRepo{
		updateMetadataFn: func(context.Context, string, model.Metadata) error {
			t.Error("UpdateMetadata should not be called on validation error")
			return nil
		},
	}
	svc := newTestService(users, nil, nil, nil)

	err := svc.CompleteOnboarding(context.Background(), "user-1", OnboardingInput{FirstName: "   ", Phone: ""})

	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Violations["first_name"] != model.ReasonRequired || verr.Violations["phone"] != model.ReasonRequired {
		t.Errorf("violations = %v", verr.Violations)
	}
}

func TestService_CompleteOnboarding_UserNotFound(t *testing.T) {
	users := &mockUserRepo{
		updateMetadataFn: func(context.Context, string, model.Metadata) error {
			return repository.ErrNotFound
		},
	}
	svc := newTestService(users, nil, nil, nil)

	err := svc.CompleteOnboarding(context.Background(), "ghost", OnboardingInput{FirstName: "Ana", Phone: "+15550100"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("expected USER_NOT_FOUND, got %v", err)
	}
}

// --- Preferences ---

func TestService_GetPreferences_DefaultsWhenMissing(t *testing.T) {
	prefs := &mockPrefsRepo{findFn: func(context.Context, string) (*model.Preferences, error) {
		return nil, nil
	}}
	svc := newTestService(nil, nil, prefs, nil)

	got, err := svc.GetPreferences(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetPreferences returned error: %v", err)
	}
	if got.WakeTime != "07:00" || got.Timezone != "UTC" || got.SnoozeLimit != 3 || got.ChallengeType != model.ChallengeMath {
		t.Errorf("defaults = %+v", got)
	}
}

func TestService_UpdatePreferences(t *testing.T) {
	var saved *model.Preferences
	prefs := &mockPrefsRepo{upsertFn: func(_ context.Context, p *model.Preferences) error {
		saved = p
		return nil
	}}
	svc := newTestService(nil, nil, prefs, nil)

	in := &model.Preferences{
		WakeTime:          "06:30",
		Timezone:          "Asia/Tokyo",
		CallEnabled:       true,
		ChallengeType:     model.ChallengeMemory,
		SnoozeLimit:       0,
		HabitReminderTime: "21:00",
		WeatherEnabled:    true,
		WeatherLocation:   &model.WeatherLocation{Name: "Tokyo", Country: "Japan", Latitude: 35.68, Longitude: 139.69},
	}
	if _, err := svc.UpdatePreferences(context.Background(), "user-1", in); err != nil {
		t.Fatalf("UpdatePreferences returned error: %v", err)
	}
	if saved == nil || saved.UserID != "user-1" || saved.UpdatedAt.IsZero() {
		t.Errorf("saved = %+v", saved)
	}
}

func TestValidatePreferences(t *testing.T) {
	valid := func() *model.Preferences {
		return &model.Preferences{
			WakeTime:          "07:00",
			Timezone:          "UTC",
			ChallengeType:     model.ChallengeMath,
			SnoozeLimit:       3,
			HabitReminderTime: "20:00",
		}
	}

	tests := []struct {
		name   string
		mutate func(p *model.Preferences)
		field  string
		reason string
	}{
		{"bad wake time", func(p *model.Preferences) { p.WakeTime = "7am" }, "wake_time", model.ReasonInvalidValue},
		{"bad reminder", func(p *model.Preferences) { p.HabitReminderTime = "" }, "habit_reminder_time", model.ReasonRequired},
		{"bad timezone", func(p *model.Preferences) { p.Timezone = "Nowhere/City" }, "timezone", model.ReasonInvalidValue},
		{"snooze too high", func(p *model.Preferences) { p.SnoozeLimit = 11 }, "snooze_limit", model.ReasonOutOfRange},
		{"snooze negative", func(p *model.Preferences) { p.SnoozeLimit = -1 }, "snooze_limit", model.ReasonOutOfRange},
		{"bad challenge", func(p *model.Preferences) { p.ChallengeType = "riddle" }, "challenge_type", model.ReasonInvalidValue},
		{"weather without location", func(p *model.Preferences) { p.WeatherEnabled = true }, "weather_location", model.ReasonRequired},
		{"latitude out of range", func(p *model.Preferences) {
			p.WeatherLocation = &model.WeatherLocation{Name: "X", Latitude: 91}
		}, "weather_location.latitude", model.ReasonOutOfRange},
	}

	if v := ValidatePreferences(valid()); !v.Empty() {
		t.Fatalf("valid preferences reported %v", v)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			v := ValidatePreferences(p)
			if v[tt.field] != tt.reason {
				t.Errorf("%s = %q, want %q (all: %v)", tt.field, v[tt.field], tt.reason, v)
			}
		})
	}
}

// --- Withdraw ---

// TestService_Withdraw は退会処理が全関連データを削除することを検証する。
func TestService_Withdraw(t *testing.T) {
	var order []string

	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "test@example.com"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			order = append(order, "user")
			return nil
		},
	}
	sessions := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			order = append(order, "sessions")
			return nil
		},
	}
	habits := &mockHabitDeleter{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			order = append(order, "habits")
			return nil
		},
	}

	svc := newTestService(users, sessions, nil, habits)

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}

	want := []string{"habits", "sessions", "user"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	users := &mockUserRepo{}
	svc := newTestService(users, &mockSessionRepo{}, nil, nil)

	err := svc.Withdraw(context.Background(), "ghost")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("expected USER_NOT_FOUND, got %v", err)
	}
}

// TestService_Withdraw_StopsOnError は途中の削除に失敗した場合にユーザーを削除しないことを検証する。
func TestService_Withdraw_StopsOnError(t *testing.T) {
	userDeleted := false
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			userDeleted = true
			return nil
		},
	}
	sessions := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("db down")
		},
	}

	svc := newTestService(users, sessions, nil, nil)

	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
	if userDeleted {
		t.Error("user must not be deleted when session deletion fails")
	}
}
