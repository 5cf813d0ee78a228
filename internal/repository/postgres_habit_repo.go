package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/wakr/internal/model"
)

// PostgresHabitRepo はPostgreSQLを使用した習慣リポジトリ。
type PostgresHabitRepo struct {
	db *sql.DB
}

// NewPostgresHabitRepo はPostgresHabitRepoを生成する。
func NewPostgresHabitRepo(db *sql.DB) *PostgresHabitRepo {
	return &PostgresHabitRepo{db: db}
}

// ListByUserID はユーザーの習慣一覧を指定日の達成状況付きで返す。
// 並び順は作成日時の昇順。
func (r *PostgresHabitRepo) ListByUserID(ctx context.Context, userID string, day time.Time) ([]model.HabitWithStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT h.id, h.user_id, h.name, h.frequency, h.created_at, h.updated_at,
		        EXISTS (SELECT 1 FROM habit_check_ins c WHERE c.habit_id = h.id AND c.check_in_date = $2::date),
		        (SELECT max(c.checked_in_at) FROM habit_check_ins c WHERE c.habit_id = h.id)
		 FROM habits h
		 WHERE h.user_id = $1
		 ORDER BY h.created_at ASC`,
		userID, day.Format("2006-01-02"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	var habits []model.HabitWithStatus
	for rows.Next() {
		var hs model.HabitWithStatus
		var frequency string
		var last sql.NullTime
		if err := rows.Scan(
			&hs.ID, &hs.UserID, &hs.Name, &frequency, &hs.CreatedAt, &hs.UpdatedAt,
			&hs.CompletedToday, &last,
		); err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		hs.Frequency = model.HabitFrequency(frequency)
		if last.Valid {
			t := last.Time
			hs.LastCheckInAt = &t
		}
		habits = append(habits, hs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate habits: %w", err)
	}
	return habits, nil
}

// FindByID は指定IDの習慣を取得する。見つからない場合はnilを返す。
func (r *PostgresHabitRepo) FindByID(ctx context.Context, id string) (*model.Habit, error) {
	habit := &model.Habit{}
	var frequency string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, frequency, created_at, updated_at
		 FROM habits WHERE id = $1`,
		id,
	).Scan(&habit.ID, &habit.UserID, &habit.Name, &frequency, &habit.CreatedAt, &habit.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find habit: %w", err)
	}
	habit.Frequency = model.HabitFrequency(frequency)
	return habit, nil
}

// Create は習慣を作成する。
func (r *PostgresHabitRepo) Create(ctx context.Context, habit *model.Habit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO habits (id, user_id, name, frequency, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		habit.ID, habit.UserID, habit.Name, string(habit.Frequency), habit.CreatedAt, habit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create habit: %w", err)
	}
	return nil
}

// Update は習慣の名前と頻度を更新する。
func (r *PostgresHabitRepo) Update(ctx context.Context, habit *model.Habit) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE habits SET name = $2, frequency = $3, updated_at = $4 WHERE id = $1`,
		habit.ID, habit.Name, string(habit.Frequency), habit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	return requireAffected(result)
}

// Delete は指定IDの習慣を削除する。チェックインはCASCADE削除される。
func (r *PostgresHabitRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM habits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	return requireAffected(result)
}

// DeleteByUserID はユーザーの全習慣を削除する。
func (r *PostgresHabitRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM habits WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user habits: %w", err)
	}
	return nil
}

// CheckIn は指定日の達成を記録する。
// (habit_id, check_in_date)の一意制約により同日の2回目以降は記録されずfalseを返す。
func (r *PostgresHabitRepo) CheckIn(ctx context.Context, habitID string, day time.Time, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO habit_check_ins (habit_id, check_in_date, checked_in_at)
		 VALUES ($1, $2::date, $3)
		 ON CONFLICT (habit_id, check_in_date) DO NOTHING`,
		habitID, day.Format("2006-01-02"), at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check in habit: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// requireAffected は更新件数が0の場合にErrNotFoundを返す。
func requireAffected(result sql.Result) error {
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
var _ HabitRepository = (*PostgresHabitRepo)(nil)
