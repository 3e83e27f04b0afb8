package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SessionTTL はセッショントークンの有効期間
const SessionTTL = 30 * 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid_session")
	ErrTokenExpired = errors.New("session_expired")
)

// CreateSessionToken はユーザーIDと有効期限から署名付きセッショントークンを生成する
// 形式: base64(userID|expiresUnix).hex(hmac)
func CreateSessionToken(userID string, secret []byte, now time.Time) string {
	payload := []byte(userID + "|" + strconv.FormatInt(now.Add(SessionTTL).Unix(), 10))
	return base64.RawURLEncoding.EncodeToString(payload) + "." + sign(payload, secret)
}

// VerifySessionToken はトークンを検証しユーザーIDを返す
func VerifySessionToken(token string, secret []byte, now time.Time) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidToken
	}
	if !hmac.Equal([]byte(sign(payload, secret)), []byte(sig)) {
		return "", ErrInvalidToken
	}

	userID, exp, ok := strings.Cut(string(payload), "|")
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if now.Unix() >= expUnix {
		return "", ErrTokenExpired
	}
	return userID, nil
}

func sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

const sessionCookieName = "campus_session"
const minSecretLen = 32

// SessionCookieName はセッションクッキー名
func SessionCookieName() string {
	return sessionCookieName
}

// SessionSecretBytes は文字列からセッション署名用のバイト列を生成する（最低32バイト）
func SessionSecretBytes(s string) []byte {
	b := []byte(s)
	if len(b) < minSecretLen {
		out := make([]byte, minSecretLen)
		copy(out, b)
		return out
	}
	return b
}
