package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/webhook"
)

// WebhookServiceInterface はWebhookハンドラーが必要とするサービスインターフェース。
type WebhookServiceInterface interface {
	HandleCallStatus(ctx context.Context, body []byte, signature string) (*model.CallEvent, error)
}

// WebhookHandler は通話プロバイダーからの通知を受けるHTTPハンドラー。
type WebhookHandler struct {
	service WebhookServiceInterface
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(service WebhookServiceInterface) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// CallStatus は通話ステータス通知を受け付ける。
// POST /api/webhooks/calls
// 署名は生のボディに対して検証するため、デコード前に全体を読み込む。
func (h *WebhookHandler) CallStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteValidationError(w, model.NewValidationError(model.Violations{"body": model.ReasonTooLong}))
		return
	}

	if _, err := h.service.HandleCallStatus(r.Context(), body, r.Header.Get(webhook.SignatureHeader)); err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			handleServiceError(w, model.NewInvalidSignatureError())
			return
		}
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
