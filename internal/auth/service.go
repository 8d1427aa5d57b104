// Package auth はOTPメール認証、Googleサインイン、セッショントークン発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/notesapp/internal/metrics"
	"github.com/hitoshi/notesapp/internal/model"
	"github.com/hitoshi/notesapp/internal/repository"
)

const (
	// OTPSentMessage はOTP発行成功時のメッセージ。
	OTPSentMessage = "OTP sent (check email)."

	defaultOTPUserName    = "Anonymous"
	defaultGoogleUserName = "Google User"
)

// OTPMailer はワンタイムコードをメールで送信するインターフェース。
type OTPMailer interface {
	SendOTP(ctx context.Context, to, code string, expiry time.Duration) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	OTPExpiry      time.Duration // ワンタイムコードの有効期間
	ExposeDebugOTP bool          // trueの場合、レスポンスにコードを含める（本番以外）
}

// SendOTPInput はOTP発行の入力。
type SendOTPInput struct {
	Email string
	Name  string
	DOB   string // 任意。send-otpでは保存しないため検証しない
}

// SendOTPResult はOTP発行の結果。
type SendOTPResult struct {
	Message  string
	DebugOTP string // ExposeDebugOTPがfalseの場合は空
}

// VerifyOTPInput はOTP検証の入力。NameとDOBは新規ユーザー作成時のみ使用する。
type VerifyOTPInput struct {
	Email string
	Code  string
	Name  string
	DOB   string
}

// AuthResult はサインイン成功時の結果。
type AuthResult struct {
	Token string
	User  *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	otpRepo  repository.OTPRepository
	mailer   OTPMailer
	verifier IDTokenVerifier
	tokens   *TokenIssuer
	metrics  metrics.MetricsCollector
	config   ServiceConfig

	now          func() time.Time
	generateCode func() (string, error)
}

// NewService はServiceを生成する。collectorはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	otpRepo repository.OTPRepository,
	mailer OTPMailer,
	verifier IDTokenVerifier,
	tokens *TokenIssuer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:     userRepo,
		otpRepo:      otpRepo,
		mailer:       mailer,
		verifier:     verifier,
		tokens:       tokens,
		metrics:      collector,
		config:       config,
		now:          time.Now,
		generateCode: GenerateOTP,
	}
}

// SendOTP はワンタイムコードを発行してメール送信する。
// Googleで登録済みのメールアドレスにはコードを発行しない。
// メール送信の失敗はログに記録するのみで、呼び出し元には成功を返す。
func (s *Service) SendOTP(ctx context.Context, in SendOTPInput) (*SendOTPResult, error) {
	if isBlank(in.Email) || isBlank(in.Name) {
		return nil, model.NewValidationError("名前とメールアドレスは必須です。")
	}
	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil && existing.Provider == model.ProviderGoogle {
		return nil, model.NewProviderConflictError()
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}

	now := s.now()
	otp := &model.OneTimeCode{
		ID:        uuid.New().String(),
		Email:     in.Email,
		Code:      code,
		ExpiresAt: now.Add(s.config.OTPExpiry),
		CreatedAt: now,
	}
	if err := s.otpRepo.Create(ctx, otp); err != nil {
		return nil, fmt.Errorf("failed to save one-time code: %w", err)
	}
	s.recordOTPIssued()

	if err := s.mailer.SendOTP(ctx, in.Email, code, s.config.OTPExpiry); err != nil {
		slog.Warn("otp email dispatch failed",
			slog.String("email", in.Email),
			slog.String("error", err.Error()),
		)
		s.recordOTPEmailFailure()
	}

	result := &SendOTPResult{Message: OTPSentMessage}
	if s.config.ExposeDebugOTP {
		result.DebugOTP = code
	}
	return result, nil
}

// VerifyOTP はワンタイムコードを検証し、セッショントークンを発行する。
// 未登録のメールアドレスの場合はprovider=otpのユーザーを作成する。
// 成功時はそのメールアドレスの全コードを削除する。
func (s *Service) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*AuthResult, error) {
	if isBlank(in.Email) || isBlank(in.Code) {
		return nil, model.NewValidationError("メールアドレスとOTPは必須です。")
	}
	dob, err := parseDOB(in.DOB)
	if err != nil {
		return nil, err
	}

	otp, err := s.otpRepo.FindValid(ctx, in.Email, in.Code, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find one-time code: %w", err)
	}
	if otp == nil {
		s.recordVerification(metrics.VerificationInvalid)
		return nil, model.NewInvalidCredentialError("OTPが無効か、有効期限が切れています。")
	}

	user, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		user, err = s.createOTPUser(ctx, in.Email, in.Name, dob)
		if err != nil {
			return nil, err
		}
	}
	if user.Provider == model.ProviderGoogle {
		s.recordVerification(metrics.VerificationConflict)
		return nil, model.NewProviderConflictError()
	}

	if _, err := s.otpRepo.DeleteByEmail(ctx, in.Email); err != nil {
		return nil, fmt.Errorf("failed to delete one-time codes: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.recordVerification(metrics.VerificationSuccess)
	s.recordSignIn(model.ProviderOTP)
	return &AuthResult{Token: token, User: user}, nil
}

// SignInWithGoogle はGoogle IDトークンを検証し、セッショントークンを発行する。
// provider=otpの既存ユーザーにはgoogle_idを紐付けるが、providerは変更しない。
func (s *Service) SignInWithGoogle(ctx context.Context, idToken string) (*AuthResult, error) {
	if isBlank(idToken) {
		return nil, model.NewValidationError("idTokenは必須です。")
	}

	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		slog.Info("google id token rejected", slog.String("error", err.Error()))
		return nil, model.NewInvalidCredentialError("Googleトークンが無効です。")
	}
	if identity.Email == "" {
		return nil, model.NewInvalidCredentialError("Googleトークンが無効です。")
	}

	user, err := s.userRepo.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	switch {
	case user == nil:
		user, err = s.createGoogleUser(ctx, identity)
		if err != nil {
			return nil, err
		}
	case user.Provider == model.ProviderOTP:
		now := s.now()
		if err := s.userRepo.LinkGoogleID(ctx, user.ID, identity.Subject, now); err != nil {
			return nil, fmt.Errorf("failed to link google id: %w", err)
		}
		user.GoogleID = identity.Subject
		user.UpdatedAt = now
		slog.Info("google id linked to otp user", slog.String("user_id", user.ID))
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.recordSignIn(model.ProviderGoogle)
	return &AuthResult{Token: token, User: user}, nil
}

// createOTPUser はprovider=otpのユーザーを作成する。
// 同一メールの同時作成に負けた場合は勝者のレコードを返す。
func (s *Service) createOTPUser(ctx context.Context, email, name string, dob *time.Time) (*model.User, error) {
	if isBlank(name) {
		name = defaultOTPUserName
	}
	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		DOB:       dob,
		Provider:  model.ProviderOTP,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.createUser(ctx, user)
}

// createGoogleUser はprovider=googleのユーザーを作成する。
func (s *Service) createGoogleUser(ctx context.Context, identity *GoogleIdentity) (*model.User, error) {
	name := identity.Name
	if isBlank(name) {
		name = defaultGoogleUserName
	}
	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     identity.Email,
		GoogleID:  identity.Subject,
		Provider:  model.ProviderGoogle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.createUser(ctx, user)
}

func (s *Service) createUser(ctx context.Context, user *model.User) (*model.User, error) {
	err := s.userRepo.Create(ctx, user)
	if errors.Is(err, repository.ErrEmailTaken) {
		winner, findErr := s.userRepo.FindByEmail(ctx, user.Email)
		if findErr != nil {
			return nil, fmt.Errorf("failed to re-read user after conflict: %w", findErr)
		}
		if winner == nil {
			return nil, fmt.Errorf("user vanished after email conflict: %w", err)
		}
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", string(user.Provider)),
	)
	return user, nil
}

func (s *Service) recordOTPIssued() {
	if s.metrics != nil {
		s.metrics.RecordOTPIssued()
	}
}

func (s *Service) recordOTPEmailFailure() {
	if s.metrics != nil {
		s.metrics.RecordOTPEmailFailure()
	}
}

func (s *Service) recordVerification(result string) {
	if s.metrics != nil {
		s.metrics.RecordOTPVerification(result)
	}
}

func (s *Service) recordSignIn(provider model.Provider) {
	if s.metrics != nil {
		s.metrics.RecordSignIn(string(provider))
	}
}

// parseDOB は生年月日をパースする。空文字の場合はnilを返す。
func parseDOB(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, model.NewValidationError("生年月日の形式が不正です。")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
