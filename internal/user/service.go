// Package user はオンボーディング、ユーザー設定、退会のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/repository"
	"github.com/hitoshi/wakr/internal/security"
)

// HabitDeleter は習慣の一括削除インターフェース。
type HabitDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo        repository.UserRepository
	sessionRepo     repository.SessionRepository
	prefsRepo       repository.PreferencesRepository
	habitDeleter    HabitDeleter
	sanitizer       security.TextSanitizer
	defaultTimezone string
	now             func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	prefsRepo repository.PreferencesRepository,
	habitDeleter HabitDeleter,
	sanitizer security.TextSanitizer,
	defaultTimezone string,
) *Service {
	return &Service{
		userRepo:        userRepo,
		sessionRepo:     sessionRepo,
		prefsRepo:       prefsRepo,
		habitDeleter:    habitDeleter,
		sanitizer:       sanitizer,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}

// OnboardingInput はオンボーディングの入力。
type OnboardingInput struct {
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
	FullName  string `json:"full_name"`
}

// CompleteOnboarding はプロフィールを保存し、onboarding_completedを立てる。
func (s *Service) CompleteOnboarding(ctx context.Context, userID string, in OnboardingInput) error {
	in.FirstName = s.sanitizer.SanitizeText(in.FirstName)
	in.Phone = s.sanitizer.SanitizeText(in.Phone)
	in.FullName = s.sanitizer.SanitizeText(in.FullName)

	v := model.Violations{}
	v.Required("first_name", in.FirstName)
	v.MaxLength("first_name", in.FirstName, model.MaxTextLength)
	v.Phone("phone", in.Phone)
	v.MaxLength("full_name", in.FullName, model.MaxTextLength)
	if !v.Empty() {
		return model.NewValidationError(v)
	}

	patch := model.Metadata{
		model.MetaFirstName:           in.FirstName,
		model.MetaPhone:               in.Phone,
		model.MetaOnboardingCompleted: true,
	}
	if in.FullName != "" {
		patch[model.MetaFullName] = in.FullName
	}

	if err := s.userRepo.UpdateMetadata(ctx, userID, patch); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	slog.Info("オンボーディングが完了しました", slog.String("user_id", userID))
	return nil
}

// GetPreferences はユーザー設定を返す。未保存の場合は初期値を返す。
func (s *Service) GetPreferences(ctx context.Context, userID string) (*model.Preferences, error) {
	prefs, err := s.prefsRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	if prefs == nil {
		return model.DefaultPreferences(userID, s.defaultTimezone), nil
	}
	return prefs, nil
}

// UpdatePreferences はユーザー設定を検証して上書きする。
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs *model.Preferences) (*model.Preferences, error) {
	v := ValidatePreferences(prefs)
	if !v.Empty() {
		return nil, model.NewValidationError(v)
	}

	if prefs.WeatherLocation != nil {
		prefs.WeatherLocation.Name = s.sanitizer.SanitizeText(prefs.WeatherLocation.Name)
		prefs.WeatherLocation.Country = s.sanitizer.SanitizeText(prefs.WeatherLocation.Country)
	}
	prefs.UserID = userID
	prefs.UpdatedAt = s.now()

	if err := s.prefsRepo.Upsert(ctx, prefs); err != nil {
		return nil, fmt.Errorf("ユーザー設定の保存に失敗しました: %w", err)
	}
	return prefs, nil
}

// ValidatePreferences はユーザー設定の各項目を検証する。
func ValidatePreferences(p *model.Preferences) model.Violations {
	v := model.Violations{}
	v.ClockTime("wake_time", p.WakeTime)
	v.ClockTime("habit_reminder_time", p.HabitReminderTime)
	v.Timezone("timezone", p.Timezone)
	v.IntRange("snooze_limit", p.SnoozeLimit, 0, 10)
	if !model.ValidChallenge(p.ChallengeType) {
		v["challenge_type"] = model.ReasonInvalidValue
	}
	if loc := p.WeatherLocation; loc != nil {
		v.Required("weather_location.name", loc.Name)
		v.FloatRange("weather_location.latitude", loc.Latitude, -90, 90)
		v.FloatRange("weather_location.longitude", loc.Longitude, -180, 180)
	} else if p.WeatherEnabled {
		v["weather_location"] = model.ReasonRequired
	}
	return v
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: habits → sessions → user（+ CASCADE: identities, user_preferences）
// call_eventsのuser_idはNULLになり、通話履歴は残る。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if s.habitDeleter != nil {
		if err := s.habitDeleter.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("習慣の削除に失敗しました: %w", err)
		}
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
