package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// ErrInvalidIDToken はGoogle IDトークンの検証に失敗した場合に返される。
var ErrInvalidIDToken = errors.New("invalid google id token")

// GoogleIdentity はGoogle IDトークンから取り出した本人情報。
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
}

// IDTokenVerifier はフェデレーテッドIDトークンの検証インターフェース。
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

// payloadValidator はidtoken.Validatorの差し替え用インターフェース。
type payloadValidator interface {
	Validate(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// GoogleIDTokenVerifier はGoogleの公開鍵で署名・audience・有効期限を検証する。
type GoogleIDTokenVerifier struct {
	validator payloadValidator
	audience  string
}

// NewGoogleIDTokenVerifier はGoogleIDTokenVerifierを生成する。
// audienceにはGOOGLE_CLIENT_IDを指定する。
func NewGoogleIDTokenVerifier(ctx context.Context, audience string, httpClient *http.Client) (*GoogleIDTokenVerifier, error) {
	opts := []idtoken.ClientOption{}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	v, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create id token validator: %w", err)
	}
	return &GoogleIDTokenVerifier{validator: v, audience: audience}, nil
}

// Verify はIDトークンを検証し、email・sub・nameを返す。
// emailはペイロードに無い場合は空文字になる。
func (v *GoogleIDTokenVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	payload, err := v.validator.Validate(ctx, idToken, v.audience)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	identity := &GoogleIdentity{Subject: payload.Subject}
	if email, ok := payload.Claims["email"].(string); ok {
		identity.Email = email
	}
	if name, ok := payload.Claims["name"].(string); ok {
		identity.Name = name
	}
	return identity, nil
}

// compile-time interface check
var _ IDTokenVerifier = (*GoogleIDTokenVerifier)(nil)
