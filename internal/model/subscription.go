package model

import "time"

// Plan は購読プランを表す。
type Plan string

const (
	PlanTrial Plan = "trial"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

// Valid はプランが定義済みの値かどうかを返す。
func (p Plan) Valid() bool {
	switch p {
	case PlanTrial, PlanBasic, PlanPro:
		return true
	default:
		return false
	}
}

// 購読ステータス
const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusExpired  = "expired"
)

// City はプラン選択時に指定される都市情報を表す。
type City struct {
	Name      string   `json:"name"`
	Country   string   `json:"country"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timezone  string   `json:"timezone,omitempty"`
}

// WeatherLocation は天気予報の対象地点を表す。
type WeatherLocation struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Preferences はモーニングコールと習慣リマインダーのユーザー設定を表す。
type Preferences struct {
	UserID            string           `json:"-"`
	WakeTime          string           `json:"wake_time"`
	Timezone          string           `json:"timezone"`
	CallEnabled       bool             `json:"call_enabled"`
	SMSEnabled        bool             `json:"sms_enabled"`
	EmailEnabled      bool             `json:"email_enabled"`
	ChallengeType     string           `json:"challenge_type"`
	SnoozeLimit       int              `json:"snooze_limit"`
	HabitReminderTime string           `json:"habit_reminder_time"`
	WeatherEnabled    bool             `json:"weather_enabled"`
	WeatherLocation   *WeatherLocation `json:"weather_location,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// チャレンジ種別
const (
	ChallengeMath   = "math"
	ChallengeMemory = "memory"
	ChallengeShake  = "shake"
	ChallengeNone   = "none"
)

// ValidChallenge はチャレンジ種別が定義済みの値かどうかを返す。
func ValidChallenge(c string) bool {
	switch c {
	case ChallengeMath, ChallengeMemory, ChallengeShake, ChallengeNone:
		return true
	default:
		return false
	}
}

// DefaultPreferences は設定が未保存のユーザーに返す初期値。
// user_preferencesテーブルの列デフォルトと一致させる。
func DefaultPreferences(userID, timezone string) *Preferences {
	return &Preferences{
		UserID:            userID,
		WakeTime:          "07:00",
		Timezone:          timezone,
		ChallengeType:     ChallengeMath,
		SnoozeLimit:       3,
		HabitReminderTime: "20:00",
	}
}
