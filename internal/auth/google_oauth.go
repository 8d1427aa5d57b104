package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrMissingIDToken はトークンレスポンスにid_tokenが含まれない場合に返される。
var ErrMissingIDToken = errors.New("id_token missing from token response")

// GoogleOAuthConfig はGoogle OAuthリダイレクトフローの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string

	// HTTPClient はトークン交換に使用するクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// GoogleOAuthProvider はブラウザ向けのGoogle OAuth 2.0認可コードフローを提供する。
// 取得したid_tokenはSignInWithGoogleと同じ経路で検証される。
type GoogleOAuthProvider struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := google.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}

	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		httpClient: config.HTTPClient,
	}
}

// GetLoginURL はGoogleの同意画面URLを生成する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// ExchangeIDToken は認可コードを交換し、レスポンスのid_tokenを返す。
func (p *GoogleOAuthProvider) ExchangeIDToken(ctx context.Context, code string) (string, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}

	idToken, ok := tok.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", ErrMissingIDToken
	}
	return idToken, nil
}

// OAuthProvider はリダイレクトフローのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeIDToken は認可コードをid_tokenに交換する。
	ExchangeIDToken(ctx context.Context, code string) (string, error)
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
