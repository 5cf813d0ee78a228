// Package habit は習慣の管理とチェックインのドメインロジックを提供する。
package habit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wakr/internal/metrics"
	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/repository"
	"github.com/hitoshi/wakr/internal/security"
)

// Input は習慣の作成・更新の入力。更新時は指定された項目のみ反映する。
type Input struct {
	Name      *string               `json:"name"`
	Frequency *model.HabitFrequency `json:"frequency"`
}

// CheckInResult はチェックインの結果。
type CheckInResult struct {
	HabitID string
	Day     string
	Created bool
}

// Service は習慣管理のサービス層。
// 他ユーザーの習慣は存在しないものとして扱う。
type Service struct {
	habitRepo       repository.HabitRepository
	prefsRepo       repository.PreferencesRepository
	sanitizer       security.TextSanitizer
	collector       metrics.MetricsCollector
	defaultTimezone string
	now             func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	habitRepo repository.HabitRepository,
	prefsRepo repository.PreferencesRepository,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	defaultTimezone string,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		habitRepo:       habitRepo,
		prefsRepo:       prefsRepo,
		sanitizer:       sanitizer,
		collector:       collector,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}

// List はユーザーの習慣一覧を当日の達成状況付きで返す。
func (s *Service) List(ctx context.Context, userID string) ([]model.HabitWithStatus, error) {
	day := s.today(ctx, userID)
	habits, err := s.habitRepo.ListByUserID(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("習慣一覧の取得に失敗しました: %w", err)
	}
	if habits == nil {
		habits = []model.HabitWithStatus{}
	}
	return habits, nil
}

// Create は習慣を作成する。頻度の省略時はdaily。
func (s *Service) Create(ctx context.Context, userID string, in Input) (*model.Habit, error) {
	name := ""
	if in.Name != nil {
		name = s.sanitizer.SanitizeText(*in.Name)
	}
	frequency := model.FrequencyDaily
	if in.Frequency != nil {
		frequency = *in.Frequency
	}

	if v := validate(name, frequency); !v.Empty() {
		return nil, model.NewValidationError(v)
	}

	now := s.now()
	habit := &model.Habit{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Frequency: frequency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.habitRepo.Create(ctx, habit); err != nil {
		return nil, fmt.Errorf("習慣の作成に失敗しました: %w", err)
	}

	slog.Info("習慣を作成しました",
		slog.String("user_id", userID),
		slog.String("habit_id", habit.ID),
	)
	return habit, nil
}

// Update は習慣の名前と頻度を更新する。
func (s *Service) Update(ctx context.Context, userID, habitID string, in Input) (*model.Habit, error) {
	habit, err := s.findOwned(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		habit.Name = s.sanitizer.SanitizeText(*in.Name)
	}
	if in.Frequency != nil {
		habit.Frequency = *in.Frequency
	}
	if v := validate(habit.Name, habit.Frequency); !v.Empty() {
		return nil, model.NewValidationError(v)
	}

	habit.UpdatedAt = s.now()
	if err := s.habitRepo.Update(ctx, habit); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewHabitNotFoundError(habitID)
		}
		return nil, fmt.Errorf("習慣の更新に失敗しました: %w", err)
	}
	return habit, nil
}

// Delete は習慣を削除する。
func (s *Service) Delete(ctx context.Context, userID, habitID string) error {
	if _, err := s.findOwned(ctx, userID, habitID); err != nil {
		return err
	}
	if err := s.habitRepo.Delete(ctx, habitID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewHabitNotFoundError(habitID)
		}
		return fmt.Errorf("習慣の削除に失敗しました: %w", err)
	}
	return nil
}

// CheckIn はユーザーのタイムゾーンにおける当日の達成を記録する。
// 同日に既に記録済みの場合はCreated=falseで成功を返す。
func (s *Service) CheckIn(ctx context.Context, userID, habitID string) (*CheckInResult, error) {
	if _, err := s.findOwned(ctx, userID, habitID); err != nil {
		return nil, err
	}

	day := s.today(ctx, userID)
	created, err := s.habitRepo.CheckIn(ctx, habitID, day, s.now())
	if err != nil {
		return nil, fmt.Errorf("チェックインの記録に失敗しました: %w", err)
	}
	if created {
		s.collector.RecordHabitCheckIn()
	}
	return &CheckInResult{HabitID: habitID, Day: day.Format("2006-01-02"), Created: created}, nil
}

// DeleteByUserID はユーザーの全習慣を削除する。退会処理から呼ばれる。
func (s *Service) DeleteByUserID(ctx context.Context, userID string) error {
	return s.habitRepo.DeleteByUserID(ctx, userID)
}

// findOwned は習慣を取得し、所有者でなければHABIT_NOT_FOUNDを返す。
func (s *Service) findOwned(ctx context.Context, userID, habitID string) (*model.Habit, error) {
	if _, err := uuid.Parse(habitID); err != nil {
		return nil, model.NewHabitNotFoundError(habitID)
	}
	habit, err := s.habitRepo.FindByID(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("習慣の取得に失敗しました: %w", err)
	}
	if habit == nil || habit.UserID != userID {
		return nil, model.NewHabitNotFoundError(habitID)
	}
	return habit, nil
}

// today はユーザー設定のタイムゾーンでの当日を返す。
// 設定の取得に失敗した場合はデフォルトのタイムゾーンを使う。
func (s *Service) today(ctx context.Context, userID string) time.Time {
	tz := s.defaultTimezone
	if s.prefsRepo != nil {
		prefs, err := s.prefsRepo.FindByUserID(ctx, userID)
		if err != nil {
			slog.Warn("ユーザー設定の取得に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else if prefs != nil && prefs.Timezone != "" {
			tz = prefs.Timezone
		}
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	y, m, d := s.now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validate(name string, frequency model.HabitFrequency) model.Violations {
	v := model.Violations{}
	v.Required("name", strings.TrimSpace(name))
	v.MaxLength("name", name, model.MaxTextLength)
	if !frequency.Valid() {
		v["frequency"] = model.ReasonInvalidValue
	}
	return v
}
