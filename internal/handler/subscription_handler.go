package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/subscription"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// Apply は認証済みユーザーにプランを割り当てて保存する。
	Apply(ctx context.Context, userID string, sel subscription.Selection) (*subscription.Result, error)
	// Acknowledge は未認証の選択を検証のみ行って受け付ける。
	Acknowledge(sel subscription.Selection) (*subscription.Result, error)
}

// SubscriptionHandler は購読プラン選択のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

// selectResponse はプラン選択のレスポンス。
type selectResponse struct {
	Message string      `json:"message"`
	Plan    model.Plan  `json:"plan"`
	City    *model.City `json:"city"`
}

// Select はプランを選択する。
// POST /api/subscription/select
// 未認証の場合は検証のみ行い、何も保存せずに200を返す。
func (h *SubscriptionHandler) Select(w http.ResponseWriter, r *http.Request) {
	var sel subscription.Selection
	if err := decodeJSON(w, r, &sel); err != nil {
		handleServiceError(w, err)
		return
	}

	var (
		result *subscription.Result
		err    error
	)
	if userID, uerr := middleware.UserIDFromContext(r.Context()); uerr == nil {
		result, err = h.service.Apply(r.Context(), userID, sel)
	} else {
		result, err = h.service.Acknowledge(sel)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	message := "プランを更新しました。"
	if !result.Persisted {
		message = "プランを受け付けました。ログイン後に反映されます。"
	}
	middleware.WriteJSON(w, http.StatusOK, selectResponse{
		Message: message,
		Plan:    result.Plan,
		City:    result.City,
	})
}
