// Package webhook は通話プロバイダーからの通話ステータス通知を検証・保存する。
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wakr/internal/metrics"
	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/repository"
)

// SignatureHeader は署名を運ぶリクエストヘッダー名。
// 値は "sha256=<hex>" または hex のみ。
const SignatureHeader = "X-Wakr-Signature"

// ErrInvalidSignature は署名が不正または欠落していることを示す。
var ErrInvalidSignature = errors.New("webhook: invalid signature")

// Sign はbodyに対するHMAC-SHA256署名をhexで返す。
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify は署名ヘッダーの値がbodyに対して正しいかを定数時間で比較する。
// シークレットが未設定の場合は常に失敗する。
func Verify(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// CallStatusPayload は通話ステータス通知のボディ。
type CallStatusPayload struct {
	CallID          string    `json:"call_id"`
	UserID          string    `json:"user_id"`
	Status          string    `json:"status"`
	DurationSeconds int       `json:"duration_seconds"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Service は通話ステータス通知の処理を行う。
type Service struct {
	secret    string
	repo      repository.CallEventRepository
	collector metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(secret string, repo repository.CallEventRepository, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		secret:    secret,
		repo:      repo,
		collector: collector,
		now:       time.Now,
	}
}

// HandleCallStatus は署名を検証し、通話イベントを保存する。
// 署名不正はErrInvalidSignature、内容の不備は*model.ValidationErrorを返す。
func (s *Service) HandleCallStatus(ctx context.Context, body []byte, signature string) (*model.CallEvent, error) {
	if !Verify(s.secret, body, signature) {
		slog.Warn("Webhookの署名検証に失敗しました")
		return nil, ErrInvalidSignature
	}

	var p CallStatusPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, model.NewValidationError(model.Violations{"body": model.ReasonInvalidValue})
	}

	v := model.Violations{}
	v.Required("call_id", p.CallID)
	v.MaxLength("call_id", p.CallID, 200)
	status := model.CallStatus(strings.ToLower(strings.TrimSpace(p.Status)))
	if p.Status == "" {
		v["status"] = model.ReasonRequired
	} else if !status.Valid() {
		v["status"] = model.ReasonInvalidValue
	}
	if p.UserID != "" {
		if _, err := uuid.Parse(p.UserID); err != nil {
			v["user_id"] = model.ReasonInvalidValue
		}
	}
	if p.DurationSeconds < 0 {
		v["duration_seconds"] = model.ReasonOutOfRange
	}
	if !v.Empty() {
		return nil, model.NewValidationError(v)
	}

	now := s.now()
	occurredAt := p.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	event := &model.CallEvent{
		ID:              uuid.New().String(),
		CallID:          p.CallID,
		UserID:          p.UserID,
		Status:          status,
		DurationSeconds: p.DurationSeconds,
		OccurredAt:      occurredAt,
		ReceivedAt:      now,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("通話イベントの保存に失敗しました: %w", err)
	}

	s.collector.RecordWebhookEvent(string(status))
	slog.Info("通話イベントを受信しました",
		slog.String("call_id", event.CallID),
		slog.String("status", string(status)),
	)
	return event, nil
}
