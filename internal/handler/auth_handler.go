// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/notesapp/internal/auth"
	"github.com/hitoshi/notesapp/internal/middleware"
	"github.com/hitoshi/notesapp/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SendOTP(ctx context.Context, in auth.SendOTPInput) (*auth.SendOTPResult, error)
	VerifyOTP(ctx context.Context, in auth.VerifyOTPInput) (*auth.AuthResult, error)
	SignInWithGoogle(ctx context.Context, idToken string) (*auth.AuthResult, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendOrigin string // リダイレクトフロー完了後の遷移先
	CookieSecure   bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	oauth   auth.OAuthProvider
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
// oauthがnilの場合、リダイレクトフローのエンドポイントは404を返す。
func NewAuthHandler(service AuthServiceInterface, oauth auth.OAuthProvider, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		oauth:   oauth,
		config:  config,
	}
}

// sendOTPRequest はワンタイムコード送信リクエストのボディ。
type sendOTPRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	DOB   string `json:"dob"`
}

// sendOTPResponse はワンタイムコード送信のレスポンス。
type sendOTPResponse struct {
	Message  string `json:"message"`
	DebugOTP string `json:"debugOtp,omitempty"`
}

// verifyOTPRequest はワンタイムコード検証リクエストのボディ。
type verifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	DOB   string `json:"dob"`
}

// googleSignInRequest はGoogle IDトークンによるサインインリクエストのボディ。
type googleSignInRequest struct {
	IDToken string `json:"idToken"`
}

// authResponse はセッショントークンとユーザー情報のレスポンス。
type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// meResponse は現在のユーザー情報のレスポンス。
type meResponse struct {
	User userResponse `json:"user"`
}

// SendOTP はワンタイムコードを発行してメール送信する。
// POST /api/auth/send-otp
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.SendOTP(r.Context(), auth.SendOTPInput{
		Email: req.Email,
		Name:  req.Name,
		DOB:   req.DOB,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendOTPResponse{
		Message:  result.Message,
		DebugOTP: result.DebugOTP,
	})
}

// VerifyOTP はワンタイムコードを検証し、セッショントークンを発行する。
// POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.VerifyOTP(r.Context(), auth.VerifyOTPInput{
		Email: req.Email,
		Code:  req.Code,
		Name:  req.Name,
		DOB:   req.DOB,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// Google はブラウザで取得したGoogle IDトークンでサインインする。
// POST /api/auth/google
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req googleSignInRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.SignInWithGoogle(r.Context(), req.IDToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(result))
}

// GoogleLogin はGoogle OAuthのリダイレクトフローを開始する。
// GET /api/auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.NotFound(w, r)
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理し、トークン付きでフロントエンドにリダイレクトする。
// GET /api/auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.NotFound(w, r)
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("stateパラメータが不正です。"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("認可コードがありません。"))
		return
	}

	// 3. 認可コードをIDトークンに交換
	idToken, err := h.oauth.ExchangeIDToken(r.Context(), code)
	if err != nil {
		slog.Error("oauth code exchange failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidCredentialError("Google認証に失敗しました。"))
		return
	}

	// 4. IDトークンサインインと同じ経路でユーザーを解決する
	result, err := h.service.SignInWithGoogle(r.Context(), idToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 5. トークンをフラグメントに載せてフロントエンドにリダイレクト
	target := strings.TrimRight(h.config.FrontendOrigin, "/") + "/#token=" + url.QueryEscape(result.Token)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		// トークンは有効だがユーザーが削除されている
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(user)})
}

func toAuthResponse(result *auth.AuthResult) authResponse {
	return authResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
