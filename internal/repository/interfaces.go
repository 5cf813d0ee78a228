// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/wakr/internal/model"
)

// ErrNotFound は更新・削除対象のレコードが存在しないことを示す。
var ErrNotFound = errors.New("record not found")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// SaveTempRegistration はメールアドレスをキーに仮登録データを保存する。
	// ユーザーが存在しない場合は作成し、存在する場合はtemp_registration_dataを置き換える。
	// オンボーディング完了済みのユーザーは更新せず、空文字列を返す。
	SaveTempRegistration(ctx context.Context, newID, email string, temp map[string]any, now time.Time) (string, error)

	// MergeTempRegistration は仮登録データを恒久メタデータへ移す条件付き更新を1文で実行する。
	// 仮登録データが存在し、かつonboarding_completedがtrueでない場合のみ更新する。
	// 更新した場合はtrueを返す。
	MergeTempRegistration(ctx context.Context, userID string, verifiedAt time.Time) (bool, error)

	// UpdateMetadata はメタデータにpatchをマージする。
	// ユーザーが存在しない場合はErrNotFoundを返す。
	UpdateMetadata(ctx context.Context, userID string, patch model.Metadata) error

	// ListRecent は作成日時の新しい順にユーザーを返す。
	ListRecent(ctx context.Context, limit int) ([]*model.User, error)

	// Count はユーザー数を返す。
	Count(ctx context.Context) (int, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、user_preferences、habitsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Extend はセッションの有効期限を延長する。
	Extend(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// PreferencesRepository はユーザー設定の永続化インターフェース。
type PreferencesRepository interface {
	// FindByUserID はユーザー設定を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Preferences, error)
	// Upsert はユーザー設定を作成または上書きする。
	Upsert(ctx context.Context, prefs *model.Preferences) error
}

// SubscriptionRepository は購読プラン選択結果の永続化インターフェース。
type SubscriptionRepository interface {
	// ApplySelection はメタデータのpatchとデフォルト設定（nil可）を同一トランザクションで書き込む。
	// ユーザーが存在しない場合はErrNotFoundを返す。
	ApplySelection(ctx context.Context, userID string, patch model.Metadata, prefs *model.Preferences) error
}

// HabitRepository は習慣データの永続化インターフェース。
type HabitRepository interface {
	// ListByUserID はユーザーの習慣一覧を指定日の達成状況付きで返す。
	ListByUserID(ctx context.Context, userID string, day time.Time) ([]model.HabitWithStatus, error)
	// FindByID は指定IDの習慣を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Habit, error)
	// Create は習慣を作成する。
	Create(ctx context.Context, habit *model.Habit) error
	// Update は習慣の名前と頻度を更新する。
	Update(ctx context.Context, habit *model.Habit) error
	// Delete は指定IDの習慣を削除する。チェックインはCASCADE削除される。
	Delete(ctx context.Context, id string) error
	// DeleteByUserID はユーザーの全習慣を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// CheckIn は指定日の達成を記録する。同日の記録が既にある場合はfalseを返す。
	CheckIn(ctx context.Context, habitID string, day time.Time, at time.Time) (bool, error)
}

// CallEventRepository は通話イベントの永続化インターフェース。
type CallEventRepository interface {
	// Create は通話イベントを保存する。
	Create(ctx context.Context, event *model.CallEvent) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// execer は*sql.DBと*sql.Txの共通部分。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
