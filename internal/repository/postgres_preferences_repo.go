package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/wakr/internal/model"
)

// PostgresPreferencesRepo はPostgreSQLを使用したユーザー設定リポジトリ。
type PostgresPreferencesRepo struct {
	db *sql.DB
}

// NewPostgresPreferencesRepo はPostgresPreferencesRepoを生成する。
func NewPostgresPreferencesRepo(db *sql.DB) *PostgresPreferencesRepo {
	return &PostgresPreferencesRepo{db: db}
}

// FindByUserID はユーザー設定を取得する。見つからない場合はnilを返す。
func (r *PostgresPreferencesRepo) FindByUserID(ctx context.Context, userID string) (*model.Preferences, error) {
	prefs := &model.Preferences{}
	var location []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, wake_time, timezone, call_enabled, sms_enabled, email_enabled,
		        challenge_type, snooze_limit, habit_reminder_time, weather_enabled,
		        weather_location, updated_at
		 FROM user_preferences WHERE user_id = $1`,
		userID,
	).Scan(
		&prefs.UserID, &prefs.WakeTime, &prefs.Timezone, &prefs.CallEnabled, &prefs.SMSEnabled, &prefs.EmailEnabled,
		&prefs.ChallengeType, &prefs.SnoozeLimit, &prefs.HabitReminderTime, &prefs.WeatherEnabled,
		&location, &prefs.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find preferences: %w", err)
	}

	if len(location) > 0 && string(location) != "null" {
		loc := &model.WeatherLocation{}
		if err := json.Unmarshal(location, loc); err != nil {
			return nil, fmt.Errorf("failed to decode weather location: %w", err)
		}
		prefs.WeatherLocation = loc
	}
	return prefs, nil
}

// Upsert はユーザー設定を作成または上書きする。
func (r *PostgresPreferencesRepo) Upsert(ctx context.Context, prefs *model.Preferences) error {
	return upsertPreferences(ctx, r.db, prefs)
}

// upsertPreferences はUpsertと購読プラン選択のトランザクションで共有する。
func upsertPreferences(ctx context.Context, db execer, prefs *model.Preferences) error {
	var location sql.NullString
	if prefs.WeatherLocation != nil {
		b, err := json.Marshal(prefs.WeatherLocation)
		if err != nil {
			return fmt.Errorf("failed to encode weather location: %w", err)
		}
		location = sql.NullString{String: string(b), Valid: true}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO user_preferences (
		    user_id, wake_time, timezone, call_enabled, sms_enabled, email_enabled,
		    challenge_type, snooze_limit, habit_reminder_time, weather_enabled,
		    weather_location, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12)
		 ON CONFLICT (user_id) DO UPDATE SET
		    wake_time = EXCLUDED.wake_time,
		    timezone = EXCLUDED.timezone,
		    call_enabled = EXCLUDED.call_enabled,
		    sms_enabled = EXCLUDED.sms_enabled,
		    email_enabled = EXCLUDED.email_enabled,
		    challenge_type = EXCLUDED.challenge_type,
		    snooze_limit = EXCLUDED.snooze_limit,
		    habit_reminder_time = EXCLUDED.habit_reminder_time,
		    weather_enabled = EXCLUDED.weather_enabled,
		    weather_location = EXCLUDED.weather_location,
		    updated_at = EXCLUDED.updated_at`,
		prefs.UserID, prefs.WakeTime, prefs.Timezone, prefs.CallEnabled, prefs.SMSEnabled, prefs.EmailEnabled,
		prefs.ChallengeType, prefs.SnoozeLimit, prefs.HabitReminderTime, prefs.WeatherEnabled,
		location, prefs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PreferencesRepository = (*PostgresPreferencesRepo)(nil)
