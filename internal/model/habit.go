package model

import "time"

// HabitFrequency は習慣の実施頻度を表す。
type HabitFrequency string

const (
	FrequencyDaily  HabitFrequency = "daily"
	FrequencyWeekly HabitFrequency = "weekly"
)

// Valid は頻度が定義済みの値かどうかを返す。
func (f HabitFrequency) Valid() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

// Habit はユーザーが追跡する習慣を表す。
type Habit struct {
	ID        string
	UserID    string
	Name      string
	Frequency HabitFrequency
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HabitWithStatus は習慣と当日の達成状況を結合した構造体。
type HabitWithStatus struct {
	Habit
	CompletedToday bool
	LastCheckInAt  *time.Time
}
