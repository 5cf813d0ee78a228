package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// StateCookieName はOAuth stateを保持するCookieの名前。
	StateCookieName = "wakr_oauth_state"
	// StateTTL はOAuth stateの有効期間。
	StateTTL = 10 * time.Minute

	stateIssuer = "wakr"
)

// ErrInvalidState はstateの署名・期限・発行者の検証に失敗したことを示す。
var ErrInvalidState = errors.New("invalid oauth state")

// StateClaims はOAuth stateに載せるクレーム。
type StateClaims struct {
	RedirectTo string `json:"redirect_to,omitempty"`
	jwt.RegisteredClaims
}

// StateSigner はOAuth stateをHS256署名付きJWTとして発行・検証する。
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner はセッションシークレットから派生した鍵でStateSignerを生成する。
func NewStateSigner(secret string) *StateSigner {
	sum := sha256.Sum256([]byte("wakr-oauth-state:" + secret))
	return &StateSigner{key: sum[:], ttl: StateTTL, now: time.Now}
}

// Sign はログイン後の戻り先を載せたstateを発行する。
// 毎回ランダムなjtiを含むため、同じ戻り先でも値は一致しない。
func (s *StateSigner) Sign(redirectTo string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}

	now := s.now()
	claims := StateClaims{
		RedirectTo: redirectTo,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			ID:        hex.EncodeToString(nonce),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Verify はstateを検証してクレームを返す。
func (s *StateSigner) Verify(state string) (*StateClaims, error) {
	claims := &StateClaims{}
	_, err := jwt.ParseWithClaims(state, claims,
		func(t *jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return claims, nil
}
