package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// CompleteOnboarding はプロフィールを保存しオンボーディングを完了する。
	CompleteOnboarding(ctx context.Context, userID string, in user.OnboardingInput) error
	// GetPreferences はユーザー設定を返す。未保存の場合は初期値。
	GetPreferences(ctx context.Context, userID string) (*model.Preferences, error)
	// UpdatePreferences はユーザー設定を検証して上書きする。
	UpdatePreferences(ctx context.Context, userID string, prefs *model.Preferences) (*model.Preferences, error)
	// Withdraw はユーザーの退会処理を実行する。
	// habits、sessions、userを削除し、identitiesとuser_preferencesはCASCADE削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// CompleteOnboarding はオンボーディングを完了する。
// POST /api/onboarding
func (h *UserHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in user.OnboardingInput
	if err := decodeJSON(w, r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.CompleteOnboarding(r.Context(), userID, in); err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"onboarding_completed": true})
}

// GetPreferences はユーザー設定を返す。
// GET /api/preferences
func (h *UserHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	prefs, err := h.service.GetPreferences(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences はユーザー設定を上書きする。
// PUT /api/preferences
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var prefs model.Preferences
	if err := decodeJSON(w, r, &prefs); err != nil {
		handleServiceError(w, err)
		return
	}

	saved, err := h.service.UpdatePreferences(r.Context(), userID, &prefs)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, saved)
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
