// Package subscription は購読プラン選択のドメインロジックを提供する。
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/wakr/internal/metrics"
	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/repository"
	"github.com/hitoshi/wakr/internal/security"
)

// TrialPeriod は試用プランの有効期間。
const TrialPeriod = 24 * time.Hour

// Selection はプラン選択リクエストの内容。
type Selection struct {
	Plan model.Plan  `json:"plan"`
	City *model.City `json:"city,omitempty"`
}

// Result はプラン選択の結果。
type Result struct {
	Plan      model.Plan
	City      *model.City
	Persisted bool
}

// Service は購読プラン選択のサービス層。
type Service struct {
	repo            repository.SubscriptionRepository
	sanitizer       security.TextSanitizer
	collector       metrics.MetricsCollector
	defaultTimezone string
	now             func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// defaultTimezoneが空の場合はUTCを使う。
func NewService(
	repo repository.SubscriptionRepository,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	defaultTimezone string,
) *Service {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		repo:            repo,
		sanitizer:       sanitizer,
		collector:       collector,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}

// Validate はプラン選択の内容を検証する。
func Validate(sel Selection) model.Violations {
	v := model.Violations{}
	switch {
	case sel.Plan == "":
		v["plan"] = model.ReasonRequired
	case !sel.Plan.Valid():
		v["plan"] = model.ReasonInvalidValue
	}

	if sel.City == nil {
		if sel.Plan == model.PlanPro {
			v["city"] = model.ReasonRequired
		}
		return v
	}

	c := sel.City
	v.Required("city.name", c.Name)
	v.Required("city.country", c.Country)
	if c.Latitude == nil {
		v["city.latitude"] = model.ReasonRequired
	} else {
		v.FloatRange("city.latitude", *c.Latitude, -90, 90)
	}
	if c.Longitude == nil {
		v["city.longitude"] = model.ReasonRequired
	} else {
		v.FloatRange("city.longitude", *c.Longitude, -180, 180)
	}
	return v
}

// Apply は認証済みユーザーにプランを割り当てる。
// メタデータの更新とproプランのデフォルト設定は同一トランザクションで書き込まれる。
func (s *Service) Apply(ctx context.Context, userID string, sel Selection) (*Result, error) {
	sel, err := s.prepare(sel)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	patch := PlanMetadata(sel.Plan, now)

	var prefs *model.Preferences
	if sel.Plan == model.PlanPro {
		prefs = s.proPreferences(userID, sel.City, now)
	}

	if err := s.repo.ApplySelection(ctx, userID, patch, prefs); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("プランの保存に失敗しました: %w", err)
	}

	s.collector.RecordSubscriptionSelection(string(sel.Plan), true)
	slog.Info("購読プランを更新しました",
		slog.String("user_id", userID),
		slog.String("plan", string(sel.Plan)),
	)

	return &Result{Plan: sel.Plan, City: sel.City, Persisted: true}, nil
}

// Acknowledge は未認証の選択を検証のみ行って受け付ける。何も保存しない。
func (s *Service) Acknowledge(sel Selection) (*Result, error) {
	sel, err := s.prepare(sel)
	if err != nil {
		return nil, err
	}
	s.collector.RecordSubscriptionSelection(string(sel.Plan), false)
	return &Result{Plan: sel.Plan, City: sel.City}, nil
}

// prepare は入力を正規化して検証する。
func (s *Service) prepare(sel Selection) (Selection, error) {
	sel.Plan = model.Plan(strings.ToLower(strings.TrimSpace(string(sel.Plan))))
	if sel.City != nil {
		c := *sel.City
		c.Name = s.sanitizer.SanitizeText(c.Name)
		c.Country = s.sanitizer.SanitizeText(c.Country)
		c.Timezone = strings.TrimSpace(c.Timezone)
		sel.City = &c
	}
	if v := Validate(sel); !v.Empty() {
		return sel, model.NewValidationError(v)
	}
	return sel, nil
}

// PlanMetadata はプランに応じたメタデータのpatchを返す。
// trial以外ではtrial_expires_atをnullにして以前の期限を消す。
func PlanMetadata(plan model.Plan, now time.Time) model.Metadata {
	patch := model.Metadata{
		model.MetaSubscriptionTier:      string(plan),
		model.MetaSubscriptionUpdatedAt: now.Format(time.RFC3339),
		model.MetaTrialExpiresAt:        nil,
	}
	if plan == model.PlanTrial {
		patch[model.MetaSubscriptionStatus] = model.SubscriptionStatusTrialing
		patch[model.MetaTrialExpiresAt] = now.Add(TrialPeriod).Format(time.RFC3339)
	} else {
		patch[model.MetaSubscriptionStatus] = model.SubscriptionStatusActive
	}
	return patch
}

// proPreferences はproプラン選択時に書き込むデフォルト設定を返す。
func (s *Service) proPreferences(userID string, city *model.City, now time.Time) *model.Preferences {
	tz := s.defaultTimezone
	if city.Timezone != "" {
		if _, err := time.LoadLocation(city.Timezone); err == nil {
			tz = city.Timezone
		} else {
			slog.Warn("都市のタイムゾーンが不正なためデフォルトを使用します",
				slog.String("timezone", city.Timezone),
			)
		}
	}

	prefs := model.DefaultPreferences(userID, tz)
	prefs.CallEnabled = true
	prefs.SMSEnabled = true
	prefs.EmailEnabled = false
	prefs.WeatherEnabled = true
	prefs.WeatherLocation = &model.WeatherLocation{
		Name:      city.Name,
		Country:   city.Country,
		Latitude:  *city.Latitude,
		Longitude: *city.Longitude,
	}
	prefs.UpdatedAt = now
	return prefs
}
