package model

import "time"

// CallStatus はモーニングコールの通話状態を表す。
type CallStatus string

const (
	CallQueued    CallStatus = "queued"
	CallRinging   CallStatus = "ringing"
	CallAnswered  CallStatus = "answered"
	CallCompleted CallStatus = "completed"
	CallNoAnswer  CallStatus = "no_answer"
	CallFailed    CallStatus = "failed"
	CallBusy      CallStatus = "busy"
)

// Valid は通話状態が定義済みの値かどうかを返す。
func (s CallStatus) Valid() bool {
	switch s {
	case CallQueued, CallRinging, CallAnswered, CallCompleted, CallNoAnswer, CallFailed, CallBusy:
		return true
	default:
		return false
	}
}

// CallEvent は通話プロバイダーのWebhookで受信した通話イベントを表す。
type CallEvent struct {
	ID              string
	CallID          string
	UserID          string
	Status          CallStatus
	DurationSeconds int
	OccurredAt      time.Time
	ReceivedAt      time.Time
}
