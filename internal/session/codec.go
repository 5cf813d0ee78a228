package session

import (
	"crypto/sha256"
	"fmt"

	"github.com/gorilla/securecookie"
)

// Codec はセッションIDとCookie値の相互変換を行う。
type Codec interface {
	Encode(name, sessionID string) (string, error)
	Decode(name, value string) (string, error)
}

// CookieCodec はgorilla/securecookieで署名・暗号化したCookie値を扱うCodec。
type CookieCodec struct {
	sc *securecookie.SecureCookie
}

// NewCookieCodec はSESSION_SECRETからハッシュ鍵と暗号鍵を導出してCookieCodecを生成する。
// maxAgeSecondsを超えて発行されたCookie値はDecodeで拒否される。
func NewCookieCodec(secret string, maxAgeSeconds int) *CookieCodec {
	hashKey := sha256.Sum256([]byte("wakr-session-hash:" + secret))
	blockKey := sha256.Sum256([]byte("wakr-session-block:" + secret))

	sc := securecookie.New(hashKey[:], blockKey[:])
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(maxAgeSeconds)

	return &CookieCodec{sc: sc}
}

// Encode はセッションIDをCookie値に変換する。
func (c *CookieCodec) Encode(name, sessionID string) (string, error) {
	v, err := c.sc.Encode(name, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to encode session cookie: %w", err)
	}
	return v, nil
}

// Decode はCookie値を検証してセッションIDを取り出す。
func (c *CookieCodec) Decode(name, value string) (string, error) {
	var sessionID string
	if err := c.sc.Decode(name, value, &sessionID); err != nil {
		return "", fmt.Errorf("failed to decode session cookie: %w", err)
	}
	if sessionID == "" {
		return "", fmt.Errorf("empty session ID in cookie")
	}
	return sessionID, nil
}
