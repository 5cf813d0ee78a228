package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wakr/internal/habit"
	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/model"
)

// HabitServiceInterface は習慣ハンドラーが必要とするサービスインターフェース。
type HabitServiceInterface interface {
	List(ctx context.Context, userID string) ([]model.HabitWithStatus, error)
	Create(ctx context.Context, userID string, in habit.Input) (*model.Habit, error)
	Update(ctx context.Context, userID, habitID string, in habit.Input) (*model.Habit, error)
	Delete(ctx context.Context, userID, habitID string) error
	CheckIn(ctx context.Context, userID, habitID string) (*habit.CheckInResult, error)
}

// HabitHandler は習慣管理のHTTPハンドラー。
type HabitHandler struct {
	service HabitServiceInterface
}

// NewHabitHandler はHabitHandlerを生成する。
func NewHabitHandler(service HabitServiceInterface) *HabitHandler {
	return &HabitHandler{service: service}
}

// habitResponse は習慣のレスポンス。
type habitResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Frequency      string     `json:"frequency"`
	CompletedToday bool       `json:"completed_today"`
	LastCheckInAt  *time.Time `json:"last_check_in_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toHabitResponse(h *model.Habit) habitResponse {
	return habitResponse{
		ID:        h.ID,
		Name:      h.Name,
		Frequency: string(h.Frequency),
		CreatedAt: h.CreatedAt,
		UpdatedAt: h.UpdatedAt,
	}
}

// checkInResponse はチェックインのレスポンス。
type checkInResponse struct {
	HabitID string `json:"habit_id"`
	Day     string `json:"day"`
	Created bool   `json:"created"`
}

// List は当日の達成状況付きで習慣一覧を返す。
// GET /api/habits
func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	habits, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]habitResponse, 0, len(habits))
	for i := range habits {
		item := toHabitResponse(&habits[i].Habit)
		item.CompletedToday = habits[i].CompletedToday
		item.LastCheckInAt = habits[i].LastCheckInAt
		resp = append(resp, item)
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Create は習慣を作成する。
// POST /api/habits
func (h *HabitHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in habit.Input
	if err := decodeJSON(w, r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, toHabitResponse(created))
}

// Update は習慣の名前または頻度を更新する。
// PATCH /api/habits/{id}
func (h *HabitHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in habit.Input
	if err := decodeJSON(w, r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, toHabitResponse(updated))
}

// Delete は習慣を削除する。
// DELETE /api/habits/{id}
func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckIn は当日の達成を記録する。
// POST /api/habits/{id}/check-ins
// 新規記録は201、同日に記録済みの場合は200を返す。
func (h *HabitHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.CheckIn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	middleware.WriteJSON(w, status, checkInResponse{
		HabitID: result.HabitID,
		Day:     result.Day,
		Created: result.Created,
	})
}
