package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はセッショントークンが無効な場合に返される。
// 署名不正、期限切れ、形式不正を区別しない。
var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims はセッショントークンのクレーム。
// ペイロードは {id, iat, exp} のみ。
type SessionClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256署名のセッショントークンを発行・検証する。
// トークンは永続化されず、失効リストも持たない。
type TokenIssuer struct {
	secret    []byte
	expiresIn time.Duration
	now       func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, expiresIn time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// Issue はユーザーIDを埋め込んだトークンを発行する。
func (t *TokenIssuer) Issue(userID string) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiresIn)),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証し、ユーザーIDを返す。
// HS256以外のアルゴリズム、exp欠落、期限切れはすべてErrInvalidTokenになる。
func (t *TokenIssuer) Parse(tokenString string) (string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
