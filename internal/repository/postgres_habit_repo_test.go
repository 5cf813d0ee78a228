package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wakr/internal/model"
)

func TestPostgresHabitRepo_ImplementsInterface(t *testing.T) {
	var _ HabitRepository = (*PostgresHabitRepo)(nil)
	var _ PreferencesRepository = (*PostgresPreferencesRepo)(nil)
	var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
	var _ CallEventRepository = (*PostgresCallEventRepo)(nil)
}

func createTestUser(t *testing.T, repo *PostgresUserRepo, email string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	user := &model.User{ID: uuid.NewString(), Email: email, CreatedAt: now, UpdatedAt: now}
	identity := &model.Identity{ID: uuid.NewString(), UserID: user.ID, Provider: "google", ProviderUserID: "g-" + email, CreatedAt: now}
	if err := repo.CreateWithIdentity(context.Background(), user, identity); err != nil {
		t.Fatalf("CreateWithIdentity failed: %v", err)
	}
	return user
}

func TestPostgresHabitRepo_CheckInOncePerDay(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, NewPostgresUserRepo(db), "habit@example.com")
	repo := NewPostgresHabitRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	habit := &model.Habit{ID: uuid.NewString(), UserID: user.ID, Name: "Stretch", Frequency: model.FrequencyDaily, CreatedAt: now, UpdatedAt: now}
	if err := repo.Create(ctx, habit); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first, err := repo.CheckIn(ctx, habit.ID, now, now)
	if err != nil || !first {
		t.Fatalf("first CheckIn = %v, %v; want true, nil", first, err)
	}
	second, err := repo.CheckIn(ctx, habit.ID, now, now.Add(time.Minute))
	if err != nil || second {
		t.Fatalf("second CheckIn = %v, %v; want false, nil", second, err)
	}

	list, err := repo.ListByUserID(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("ListByUserID failed: %v", err)
	}
	if len(list) != 1 || !list[0].CompletedToday || list[0].LastCheckInAt == nil {
		t.Errorf("ListByUserID = %+v, want one completed habit", list)
	}

	tomorrow, _ := repo.ListByUserID(ctx, user.ID, now.AddDate(0, 0, 1))
	if len(tomorrow) != 1 || tomorrow[0].CompletedToday {
		t.Errorf("next day should not be completed: %+v", tomorrow)
	}
}

func TestPostgresHabitRepo_UpdateDeleteNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresHabitRepo(db)
	ctx := context.Background()

	missing := &model.Habit{ID: uuid.NewString(), Name: "x", Frequency: model.FrequencyDaily, UpdatedAt: time.Now()}
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update err = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, missing.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete err = %v, want ErrNotFound", err)
	}
}

func TestPostgresSubscriptionRepo_ApplySelection(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	user := createTestUser(t, users, "pro@example.com")
	subs := NewPostgresSubscriptionRepo(db)
	prefsRepo := NewPostgresPreferencesRepo(db)
	ctx := context.Background()

	prefs := &model.Preferences{
		UserID:            user.ID,
		WakeTime:          "07:00",
		Timezone:          "Asia/Tokyo",
		CallEnabled:       true,
		SMSEnabled:        true,
		ChallengeType:     model.ChallengeMath,
		SnoozeLimit:       3,
		HabitReminderTime: "20:00",
		WeatherEnabled:    true,
		WeatherLocation:   &model.WeatherLocation{Name: "Tokyo", Country: "Japan", Latitude: 35.68, Longitude: 139.69},
		UpdatedAt:         time.Now().UTC(),
	}
	patch := model.Metadata{model.MetaSubscriptionTier: "pro", model.MetaSubscriptionStatus: "active"}
	if err := subs.ApplySelection(ctx, user.ID, patch, prefs); err != nil {
		t.Fatalf("ApplySelection failed: %v", err)
	}

	got, err := prefsRepo.FindByUserID(ctx, user.ID)
	if err != nil || got == nil {
		t.Fatalf("FindByUserID = %v, %v", got, err)
	}
	if got.Timezone != "Asia/Tokyo" || got.WeatherLocation == nil || got.WeatherLocation.Name != "Tokyo" {
		t.Errorf("preferences = %+v", got)
	}

	updated, _ := users.FindByID(ctx, user.ID)
	if updated.Metadata.String(model.MetaSubscriptionTier) != "pro" {
		t.Errorf("subscription_tier = %q, want pro", updated.Metadata.String(model.MetaSubscriptionTier))
	}

	// 存在しないユーザーは設定も書き込まれない
	ghost := uuid.NewString()
	ghostPrefs := *prefs
	ghostPrefs.UserID = ghost
	if err := subs.ApplySelection(ctx, ghost, patch, &ghostPrefs); !errors.Is(err, ErrNotFound) {
		t.Errorf("ApplySelection(ghost) err = %v, want ErrNotFound", err)
	}
}

func TestPostgresCallEventRepo_UnknownUserStoredAsNull(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresCallEventRepo(db)
	now := time.Now().UTC()

	event := &model.CallEvent{
		ID:         uuid.NewString(),
		CallID:     "call-1",
		UserID:     uuid.NewString(),
		Status:     model.CallCompleted,
		OccurredAt: now,
		ReceivedAt: now,
	}
	if err := repo.Create(context.Background(), event); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT count(*) FROM call_events WHERE call_id = 'call-1' AND user_id IS NULL`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
