package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wakr/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読プランリポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

// ApplySelection はメタデータのpatchとデフォルト設定を同一トランザクションで書き込む。
// prefsがnilの場合は設定を変更しない。
func (r *PostgresSubscriptionRepo) ApplySelection(ctx context.Context, userID string, patch model.Metadata, prefs *model.Preferences) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateMetadata(ctx, tx, userID, patch); err != nil {
		return err
	}

	if prefs != nil {
		if err := upsertPreferences(ctx, tx, prefs); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
