package model

import (
	"net/mail"
	"strings"
	"time"
)

// 違反理由
const (
	ReasonRequired     = "required"
	ReasonOutOfRange   = "out_of_range"
	ReasonInvalidValue = "invalid_value"
	ReasonTooLong      = "too_long"
)

// MaxTextLength は氏名や習慣名など自由入力テキストの最大文字数。
const MaxTextLength = 100

// Email はメールアドレスの形式を検証する。空の場合はrequired。
func (v Violations) Email(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		v[field] = ReasonRequired
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		v[field] = ReasonInvalidValue
	}
}

// Phone は電話番号として使える文字のみで、数字を7桁以上含むかを検証する。
func (v Violations) Phone(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		v[field] = ReasonRequired
		return
	}
	digits := 0
	for i, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			v[field] = ReasonInvalidValue
			return
		}
	}
	if digits < 7 || digits > 15 {
		v[field] = ReasonInvalidValue
	}
}

// MaxLength は文字数が上限を超える場合に違反を記録する。
func (v Violations) MaxLength(field, value string, max int) {
	if len([]rune(value)) > max {
		v[field] = ReasonTooLong
	}
}

// ClockTime は"HH:MM"形式の時刻を検証する。
func (v Violations) ClockTime(field, value string) {
	if value == "" {
		v[field] = ReasonRequired
		return
	}
	if _, err := time.Parse("15:04", value); err != nil || len(value) != 5 {
		v[field] = ReasonInvalidValue
	}
}

// Timezone はIANAタイムゾーン名を検証する。
func (v Violations) Timezone(field, value string) {
	if value == "" {
		v[field] = ReasonRequired
		return
	}
	if _, err := time.LoadLocation(value); err != nil {
		v[field] = ReasonInvalidValue
	}
}

// IntRange は整数が範囲内かを検証する。
func (v Violations) IntRange(field string, value, min, max int) {
	if value < min || value > max {
		v[field] = ReasonOutOfRange
	}
}

// FloatRange は実数が範囲内かを検証する。
func (v Violations) FloatRange(field string, value, min, max float64) {
	if value < min || value > max {
		v[field] = ReasonOutOfRange
	}
}
