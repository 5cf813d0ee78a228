package auth

import (
	"errors"
	"testing"
	"time"
)

func TestStateSigner_RoundTrip(t *testing.T) {
	signer := NewStateSigner("test-secret")

	state, err := signer.Sign("/dashboard/habits")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	claims, err := signer.Verify(state)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.RedirectTo != "/dashboard/habits" {
		t.Errorf("RedirectTo = %q, want /dashboard/habits", claims.RedirectTo)
	}
}

func TestStateSigner_UniquePerCall(t *testing.T) {
	signer := NewStateSigner("test-secret")
	a, _ := signer.Sign("")
	b, _ := signer.Sign("")
	if a == b {
		t.Error("two states for the same redirect should differ")
	}
}

func TestStateSigner_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := NewStateSigner("test-secret")
	signer.now = func() time.Time { return now }

	valid, err := signer.Sign("/dashboard")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	other := NewStateSigner("other-secret")
	other.now = signer.now
	foreign, _ := other.Sign("/dashboard")

	tests := []struct {
		name  string
		state string
		at    time.Time
	}{
		{"empty", "", now},
		{"garbage", "not-a-jwt", now},
		{"tampered", valid[:len(valid)-2] + "xx", now},
		{"wrong key", foreign, now},
		{"expired", valid, now.Add(StateTTL + time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			signer.now = func() time.Time { return at }
			if _, err := signer.Verify(tt.state); !errors.Is(err, ErrInvalidState) {
				t.Errorf("Verify() error = %v, want ErrInvalidState", err)
			}
		})
	}
}
