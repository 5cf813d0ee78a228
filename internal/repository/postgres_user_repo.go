package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/wakr/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, name, metadata, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser は1行分のユーザーを読み取る。metadataはJSONBとしてデコードする。
func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var raw []byte
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &raw, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(raw)
	if err != nil {
		return nil, err
	}
	user.Metadata = meta
	return user, nil
}

func decodeMetadata(raw []byte) (model.Metadata, error) {
	meta := model.Metadata{}
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return meta, nil
}

// encodeMetadata はメタデータをJSON文字列にする。
// lib/pqは[]byteをbyteaとして送るため、JSONB列には文字列で渡す。
func encodeMetadata(meta model.Metadata) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	meta, err := encodeMetadata(user.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Name, meta, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SaveTempRegistration はメールアドレスをキーに仮登録データを保存する。
// オンボーディング完了済みのユーザーに対してはON CONFLICTのWHERE句で更新を抑止し、
// RETURNINGが0行になることで空文字列を返す。
func (r *PostgresUserRepo) SaveTempRegistration(ctx context.Context, newID, email string, temp map[string]any, now time.Time) (string, error) {
	tempJSON, err := json.Marshal(temp)
	if err != nil {
		return "", fmt.Errorf("failed to encode temp registration data: %w", err)
	}

	var id string
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name, metadata, created_at, updated_at)
		 VALUES ($1, lower($2), '', jsonb_build_object('temp_registration_data', $3::jsonb), $4, $4)
		 ON CONFLICT (email) DO UPDATE
		   SET metadata = users.metadata || jsonb_build_object('temp_registration_data', $3::jsonb),
		       updated_at = $4
		   WHERE users.metadata -> 'onboarding_completed' IS DISTINCT FROM 'true'::jsonb
		 RETURNING id`,
		newID, email, string(tempJSON), now,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to save temp registration: %w", err)
	}
	return id, nil
}

// MergeTempRegistration は仮登録データを恒久メタデータへ移す。
// 判定と書き込みを1つの条件付きUPDATEで行うため、同時に届いたコールバックでも
// 2回目以降は対象行なしとなり何も変更しない。
func (r *PostgresUserRepo) MergeTempRegistration(ctx context.Context, userID string, verifiedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET metadata = (metadata - 'temp_registration_data')
		                || (metadata -> 'temp_registration_data')
		                || jsonb_build_object('onboarding_completed', true, 'email_verified_at', $2::text),
		     updated_at = $3
		 WHERE id = $1
		   AND jsonb_typeof(metadata -> 'temp_registration_data') = 'object'
		   AND metadata -> 'onboarding_completed' IS DISTINCT FROM 'true'::jsonb`,
		userID, verifiedAt.UTC().Format(time.RFC3339), verifiedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to merge temp registration: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// UpdateMetadata はメタデータにpatchをマージする。
func (r *PostgresUserRepo) UpdateMetadata(ctx context.Context, userID string, patch model.Metadata) error {
	return updateMetadata(ctx, r.db, userID, patch)
}

// updateMetadata はUpdateMetadataとトランザクション内の更新で共有する。
func updateMetadata(ctx context.Context, db execer, userID string, patch model.Metadata) error {
	b, err := encodeMetadata(patch)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx,
		`UPDATE users SET metadata = metadata || $2::jsonb, updated_at = now() WHERE id = $1`,
		userID, b,
	)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecent は作成日時の新しい順にユーザーを返す。
func (r *PostgresUserRepo) ListRecent(ctx context.Context, limit int) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Count はユーザー数を返す。
func (r *PostgresUserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するidentities、user_preferences、habitsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

// ExpireTrials は試用期限を過ぎたtrialingユーザーのステータスをexpiredに更新し、件数を返す。
func (r *PostgresUserRepo) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET metadata = metadata || jsonb_build_object('subscription_status', 'expired'),
		     updated_at = $1
		 WHERE metadata ->> 'subscription_status' = 'trialing'
		   AND (metadata ->> 'trial_expires_at')::timestamptz <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire trials: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
