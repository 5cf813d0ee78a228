// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"sort"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, habit, subscription, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeHabitNotFound     = "HABIT_NOT_FOUND"
	ErrCodeAlreadyRegistered = "ALREADY_REGISTERED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInvalidSignature  = "INVALID_SIGNATURE"
	ErrCodeUpstreamFailed    = "UPSTREAM_FAILED"
	ErrCodeCSRFInvalid       = "CSRF_INVALID"
)

// Violations はフィールド単位のバリデーション違反を保持する。
// キーはフィールド名、値は違反理由（required, out_of_range, invalid_value 等）。
type Violations map[string]string

// Empty は違反がないかどうかを返す。
func (v Violations) Empty() bool { return len(v) == 0 }

// Required は値が空白のみの場合に違反を記録する。
func (v Violations) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v[field] = ReasonRequired
	}
}

// ValidationError はリクエストのバリデーションエラーを表す。
type ValidationError struct {
	Violations Violations
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f, reason := range e.Violations {
		fields = append(fields, f+"="+reason)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// NewValidationError はバリデーションエラーを生成する。
func NewValidationError(v Violations) *ValidationError {
	return &ValidationError{Violations: v}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewHabitNotFoundError は習慣が見つからない場合のエラーを生成する。
func NewHabitNotFoundError(habitID string) *APIError {
	return &APIError{
		Code:     ErrCodeHabitNotFound,
		Message:  fmt.Sprintf("指定された習慣が見つかりません: %s", habitID),
		Category: "habit",
		Action:   "習慣IDを確認してください。",
	}
}

// NewAlreadyRegisteredError は登録済みメールアドレスで仮登録しようとした場合のエラーを生成する。
func NewAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログイン画面からログインしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidSignatureError はWebhook署名の検証失敗エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "署名の検証に失敗しました。",
		Category: "auth",
		Action:   "Webhookシークレットの設定を確認してください。",
	}
}

// NewUpstreamFailedError は外部APIの呼び出し失敗エラーを生成する。
func NewUpstreamFailedError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("外部サービスの呼び出しに失敗しました: %s", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証の失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "リクエストを検証できませんでした。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
