package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wakr/internal/model"
)

// PostgresCallEventRepo はPostgreSQLを使用した通話イベントリポジトリ。
type PostgresCallEventRepo struct {
	db *sql.DB
}

// NewPostgresCallEventRepo はPostgresCallEventRepoを生成する。
func NewPostgresCallEventRepo(db *sql.DB) *PostgresCallEventRepo {
	return &PostgresCallEventRepo{db: db}
}

// Create は通話イベントを保存する。
// user_idが未登録のユーザーを指す場合はNULLとして保存する。
func (r *PostgresCallEventRepo) Create(ctx context.Context, event *model.CallEvent) error {
	var userID sql.NullString
	if event.UserID != "" {
		userID = sql.NullString{String: event.UserID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO call_events (id, call_id, user_id, status, duration_seconds, occurred_at, received_at)
		 VALUES ($1, $2, (SELECT id FROM users WHERE id = $3), $4, $5, $6, $7)`,
		event.ID, event.CallID, userID, string(event.Status), event.DurationSeconds, event.OccurredAt, event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create call event: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CallEventRepository = (*PostgresCallEventRepo)(nil)
