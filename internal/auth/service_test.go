package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/notesapp/internal/metrics"
	"github.com/hitoshi/notesapp/internal/model"
	"github.com/hitoshi/notesapp/internal/repository"
)

// --- モック定義 ---

// memUserRepo はメモリ上のユーザーリポジトリ。
type memUserRepo struct {
	mu       sync.Mutex
	byEmail  map[string]*model.User
	createFn func(ctx context.Context, user *model.User) error
	findErr  error
	linked   []string
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byEmail: make(map[string]*model.User)}
}

func (m *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *memUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[user.Email]; ok {
		return repository.ErrEmailTaken
	}
	copied := *user
	m.byEmail[user.Email] = &copied
	return nil
}

func (m *memUserRepo) LinkGoogleID(_ context.Context, userID, googleID string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == userID {
			u.GoogleID = googleID
			u.UpdatedAt = updatedAt
			m.linked = append(m.linked, userID)
			return nil
		}
	}
	return errors.New("user not found")
}

func (m *memUserRepo) put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byEmail[u.Email] = u
}

// memOTPRepo はメモリ上のワンタイムコードリポジトリ。
type memOTPRepo struct {
	mu        sync.Mutex
	codes     []*model.OneTimeCode
	createErr error
}

func (m *memOTPRepo) Create(_ context.Context, code *model.OneTimeCode) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *code
	m.codes = append(m.codes, &copied)
	return nil
}

func (m *memOTPRepo) FindValid(_ context.Context, email, code string, now time.Time) (*model.OneTimeCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.codes {
		if c.Email == email && c.Code == code && c.IsValidAt(now) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memOTPRepo) DeleteByEmail(_ context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.codes[:0]
	var deleted int64
	for _, c := range m.codes {
		if c.Email == email {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	m.codes = kept
	return deleted, nil
}

func (m *memOTPRepo) countFor(email string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.codes {
		if c.Email == email {
			n++
		}
	}
	return n
}

type mockMailer struct {
	sendFn func(ctx context.Context, to, code string, expiry time.Duration) error
	sent   []string
}

func (m *mockMailer) SendOTP(ctx context.Context, to, code string, expiry time.Duration) error {
	m.sent = append(m.sent, to+":"+code)
	if m.sendFn != nil {
		return m.sendFn(ctx, to, code, expiry)
	}
	return nil
}

type mockVerifier struct {
	verifyFn func(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

func (m *mockVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	return m.verifyFn(ctx, idToken)
}

type mockMetrics struct {
	otpIssued     int
	emailFailures int
	verifications map[string]int
	signIns       map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{verifications: map[string]int{}, signIns: map[string]int{}}
}

func (m *mockMetrics) RecordOTPIssued() { m.otpIssued++ }
func (m *mockMetrics) RecordOTPEmailFailure() { m.emailFailures++ }
func (m *mockMetrics) RecordOTPVerification(result string) { m.verifications[result]++ }
func (m *mockMetrics) RecordSignIn(provider string) { m.signIns[provider]++ }
func (m *mockMetrics) RecordHTTPStatus(int) {}
func (m *mockMetrics) RecordRequestLatency(time.Duration) {}
func (m *mockMetrics) RecordOTPCleanup(int64) {}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*memUserRepo)(nil)
var _ repository.OTPRepository = (*memOTPRepo)(nil)
var _ OTPMailer = (*mockMailer)(nil)
var _ IDTokenVerifier = (*mockVerifier)(nil)
var _ metrics.MetricsCollector = (*mockMetrics)(nil)

// --- ヘルパー ---

type testEnv struct {
	svc     *Service
	users   *memUserRepo
	otps    *memOTPRepo
	mailer  *mockMailer
	metrics *mockMetrics
	tokens  *TokenIssuer
	now     time.Time
}

func newTestEnv(t *testing.T, verifier IDTokenVerifier) *testEnv {
	t.Helper()
	env := &testEnv{
		users:   newMemUserRepo(),
		otps:    &memOTPRepo{},
		mailer:  &mockMailer{},
		metrics: newMockMetrics(),
		tokens:  NewTokenIssuer("test-secret", 7*24*time.Hour),
		now:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	if verifier == nil {
		verifier = &mockVerifier{verifyFn: func(context.Context, string) (*GoogleIdentity, error) {
			return nil, ErrInvalidIDToken
		}}
	}
	env.tokens.now = func() time.Time { return env.now }
	env.svc = NewService(env.users, env.otps, env.mailer, verifier, env.tokens, env.metrics, ServiceConfig{
		OTPExpiry:      10 * time.Minute,
		ExposeDebugOTP: true,
	})
	env.svc.now = func() time.Time { return env.now }
	return env
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %s, want %s", apiErr.Code, code)
	}
}

// --- SendOTP ---

func TestSendOTP_CreatesCodeWithConfiguredExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.generateCode = func() (string, error) { return "123456", nil }

	result, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"})
	if err != nil {
		t.Fatalf("SendOTP error: %v", err)
	}

	if result.Message != OTPSentMessage {
		t.Errorf("Message = %q, want %q", result.Message, OTPSentMessage)
	}
	if result.DebugOTP != "123456" {
		t.Errorf("DebugOTP = %q, want 123456", result.DebugOTP)
	}
	if len(env.otps.codes) != 1 {
		t.Fatalf("codes = %d, want 1", len(env.otps.codes))
	}
	code := env.otps.codes[0]
	if !code.ExpiresAt.Equal(env.now.Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", code.ExpiresAt, env.now.Add(10*time.Minute))
	}
	if code.Email != "a@x.com" || code.Code != "123456" {
		t.Errorf("unexpected code record: %+v", code)
	}
	if len(env.mailer.sent) != 1 || env.mailer.sent[0] != "a@x.com:123456" {
		t.Errorf("mailer.sent = %v", env.mailer.sent)
	}
	if env.metrics.otpIssued != 1 {
		t.Errorf("otpIssued = %d, want 1", env.metrics.otpIssued)
	}
}

func TestSendOTP_ProductionHidesDebugOTP(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.config.ExposeDebugOTP = false

	result, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"})
	if err != nil {
		t.Fatalf("SendOTP error: %v", err)
	}
	if result.DebugOTP != "" {
		t.Errorf("DebugOTP = %q, want empty in production", result.DebugOTP)
	}
}

func TestSendOTP_MailFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mailer.sendFn = func(context.Context, string, string, time.Duration) error {
		return errors.New("smtp: connection refused")
	}

	result, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"})
	if err != nil {
		t.Fatalf("SendOTP error: %v", err)
	}
	if result.Message != OTPSentMessage {
		t.Errorf("Message = %q", result.Message)
	}
	if env.otps.countFor("a@x.com") != 1 {
		t.Error("code should be persisted even when email fails")
	}
	if env.metrics.emailFailures != 1 {
		t.Errorf("emailFailures = %d, want 1", env.metrics.emailFailures)
	}
}

func TestSendOTP_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input SendOTPInput
	}{
		{"メールアドレスが空", SendOTPInput{Name: "A"}},
		{"名前が空", SendOTPInput{Email: "a@x.com"}},
		{"名前が空白のみ", SendOTPInput{Email: "a@x.com", Name: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			_, err := env.svc.SendOTP(context.Background(), tt.input)
			assertAPIErrorCode(t, err, model.ErrCodeValidation)
			if len(env.otps.codes) != 0 {
				t.Error("no code should be created on validation failure")
			}
		})
	}
}

// 生年月日はverify-otpでのみ保存されるため、send-otpでは形式を問わない。
func TestSendOTP_IgnoresDOB(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A", DOB: "01/02/1990"})
	if err != nil {
		t.Fatalf("SendOTP error: %v", err)
	}
	if env.otps.countFor("a@x.com") != 1 {
		t.Error("code should be created regardless of dob")
	}
}

func TestSendOTP_GoogleUserConflict_NoCodeCreated(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.put(&model.User{ID: "u-g", Email: "b@x.com", Provider: model.ProviderGoogle})

	_, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "b@x.com", Name: "B"})
	assertAPIErrorCode(t, err, model.ErrCodeProviderConflict)

	if env.otps.countFor("b@x.com") != 0 {
		t.Error("no code should be created for google user")
	}
	if len(env.mailer.sent) != 0 {
		t.Error("no email should be sent for google user")
	}
}

func TestSendOTP_MultipleLiveCodesAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 3; i++ {
		if _, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"}); err != nil {
			t.Fatalf("SendOTP error: %v", err)
		}
	}
	if got := env.otps.countFor("a@x.com"); got != 3 {
		t.Errorf("codes = %d, want 3", got)
	}
}

func TestSendOTP_RepositoryErrorPropagates(t *testing.T) {
	env := newTestEnv(t, nil)
	env.otps.createErr = errors.New("db down")

	_, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("infrastructure error should not be an APIError: %v", err)
	}
}

// --- VerifyOTP ---

func TestVerifyOTP_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@x.com"})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)

	_, err = env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Code: "123456"})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

func TestVerifyOTP_UnknownCode_FailsWithoutTouchingUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.generateCode = func() (string, error) { return "111111", nil }
	if _, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"}); err != nil {
		t.Fatalf("SendOTP error: %v", err)
	}

	tests := []struct {
		name  string
		input VerifyOTPInput
	}{
		{"コードが異なる", VerifyOTPInput{Email: "a@x.com", Code: "222222"}},
		{"メールアドレスが異なる", VerifyOTPInput{Email: "other@x.com", Code: "111111"}},
		{"大文字小文字が異なる", VerifyOTPInput{Email: "A@x.com", Code: "111111"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.VerifyOTP(context.Background(), tt.input)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidCredential)
		})
	}

	if len(env.users.byEmail) != 0 {
		t.Errorf("users = %d, want 0", len(env.users.byEmail))
	}
	if env.otps.countFor("a@x.com") != 1 {
		t.Error("failed verification should not delete codes")
	}
	if env.metrics.verifications[metrics.VerificationInvalid] != 3 {
		t.Errorf("invalid verifications = %d, want 3", env.metrics.verifications[metrics.VerificationInvalid])
	}
}

func TestVerifyOTP_ExpiredCodeRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.generateCode = func() (string, error) { return "123456", nil }
	if _, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"}); err != nil {
		t.Fatalf("SendOTP error: %v", err)
	}

	env.now = env.now.Add(10 * time.Minute)

	_, err := env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@x.com", Code: "123456"})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredential)
	if len(env.users.byEmail) != 0 {
		t.Error("expired code must not create a user")
	}
}

func TestVerifyOTP_DeletesAllCodesForEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	codes := []string{"100001", "100002", "100003"}
	i := 0
	env.svc.generateCode = func() (string, error) {
		c := codes[i]
		i++
		return c, nil
	}
	for range codes {
		if _, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"}); err != nil {
			t.Fatalf("SendOTP error: %v", err)
		}
	}
	// 他のメールアドレスのコードは残ること
	env.otps.codes = append(env.otps.codes, &model.OneTimeCode{Email: "other@x.com", Code: "999999", ExpiresAt: env.now.Add(time.Hour)})

	if _, err := env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@x.com", Code: "100002"}); err != nil {
		t.Fatalf("VerifyOTP error: %v", err)
	}

	if got := env.otps.countFor("a@x.com"); got != 0 {
		t.Errorf("codes for a@x.com = %d, want 0", got)
	}
	if got := env.otps.countFor("other@x.com"); got != 1 {
		t.Errorf("codes for other@x.com = %d, want 1", got)
	}
}

func TestVerifyOTP_NewUser_DefaultsAndDOB(t *testing.T) {
	tests := []struct {
		name     string
		input    VerifyOTPInput
		wantName string
		wantDOB  string
	}{
		{
			name:     "名前未指定はAnonymous",
			input:    VerifyOTPInput{Email: "a@x.com", Code: "123456"},
			wantName: "Anonymous",
		},
		{
			name:     "名前と生年月日を保存",
			input:    VerifyOTPInput{Email: "a@x.com", Code: "123456", Name: "Alice", DOB: "1990-05-01"},
			wantName: "Alice",
			wantDOB:  "1990-05-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.svc.generateCode = func() (string, error) { return "123456", nil }
			if _, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"}); err != nil {
				t.Fatalf("SendOTP error: %v", err)
			}

			result, err := env.svc.VerifyOTP(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("VerifyOTP error: %v", err)
			}

			if result.User.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", result.User.Name, tt.wantName)
			}
			if result.User.Provider != model.ProviderOTP {
				t.Errorf("Provider = %q, want otp", result.User.Provider)
			}
			if tt.wantDOB == "" && result.User.DOB != nil {
				t.Errorf("DOB = %v, want nil", result.User.DOB)
			}
			if tt.wantDOB != "" && (result.User.DOB == nil || result.User.DOB.Format(time.DateOnly) != tt.wantDOB) {
				t.Errorf("DOB = %v, want %s", result.User.DOB, tt.wantDOB)
			}
		})
	}
}

func TestVerifyOTP_ExistingOTPUser_SignsInWithoutCreating(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.put(&model.User{ID: "u-1", Name: "Old", Email: "a@x.com", Provider: model.ProviderOTP})
	env.svc.generateCode = func() (string, error) { return "123456", nil }
	if _, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "New"}); err != nil {
		t.Fatalf("SendOTP error: %v", err)
	}

	result, err := env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@x.com", Code: "123456", Name: "New"})
	if err != nil {
		t.Fatalf("VerifyOTP error: %v", err)
	}
	if result.User.ID != "u-1" || result.User.Name != "Old" {
		t.Errorf("unexpected user: %+v", result.User)
	}
}

func TestVerifyOTP_GoogleUserAlwaysConflicts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.users.put(&model.User{ID: "u-g", Email: "b@x.com", Provider: model.ProviderGoogle})
	// コードが正しく存在していても拒否されること
	env.otps.codes = append(env.otps.codes, &model.OneTimeCode{
		Email: "b@x.com", Code: "123456", ExpiresAt: env.now.Add(time.Minute),
	})

	_, err := env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "b@x.com", Code: "123456"})
	assertAPIErrorCode(t, err, model.ErrCodeProviderConflict)

	if env.otps.countFor("b@x.com") != 1 {
		t.Error("codes should not be deleted on conflict")
	}
	if env.metrics.verifications[metrics.VerificationConflict] != 1 {
		t.Error("conflict should be recorded")
	}
}

func TestVerifyOTP_TokenResolvesToUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.generateCode = func() (string, error) { return "123456", nil }
	if _, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"}); err != nil {
		t.Fatalf("SendOTP error: %v", err)
	}

	result, err := env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@x.com", Code: "123456"})
	if err != nil {
		t.Fatalf("VerifyOTP error: %v", err)
	}

	userID, err := env.tokens.Parse(result.Token)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("token user = %q, want %q", userID, result.User.ID)
	}
	if env.metrics.signIns["otp"] != 1 {
		t.Errorf("signIns[otp] = %d, want 1", env.metrics.signIns["otp"])
	}
}

func TestVerifyOTP_CreateRaceReadsWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	env.otps.codes = append(env.otps.codes, &model.OneTimeCode{
		Email: "a@x.com", Code: "123456", ExpiresAt: env.now.Add(time.Minute),
	})
	env.users.createFn = func(_ context.Context, user *model.User) error {
		// 別リクエストが先に作成した状態を再現する
		env.users.put(&model.User{ID: "winner", Email: user.Email, Provider: model.ProviderOTP})
		return repository.ErrEmailTaken
	}

	result, err := env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@x.com", Code: "123456"})
	if err != nil {
		t.Fatalf("VerifyOTP error: %v", err)
	}
	if result.User.ID != "winner" {
		t.Errorf("User.ID = %q, want winner", result.User.ID)
	}
}

// send → verify → 同じコードで再検証 のシナリオ
func TestOTPFlow_SendVerifyReplay(t *testing.T) {
	env := newTestEnv(t, nil)

	sent, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "a@x.com", Name: "A"})
	if err != nil {
		t.Fatalf("SendOTP error: %v", err)
	}
	if got := env.otps.codes[0].ExpiresAt; !got.Equal(env.now.Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want now+10m", got)
	}

	result, err := env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@x.com", Code: sent.DebugOTP})
	if err != nil {
		t.Fatalf("VerifyOTP error: %v", err)
	}
	if result.Token == "" {
		t.Error("expected token")
	}
	if result.User.Provider != model.ProviderOTP {
		t.Errorf("Provider = %q, want otp", result.User.Provider)
	}

	_, err = env.svc.VerifyOTP(context.Background(), VerifyOTPInput{Email: "a@x.com", Code: sent.DebugOTP})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredential)
}

// --- SignInWithGoogle ---

func googleVerifier(identity *GoogleIdentity) *mockVerifier {
	return &mockVerifier{verifyFn: func(_ context.Context, idToken string) (*GoogleIdentity, error) {
		if idToken != "valid-id-token" {
			return nil, ErrInvalidIDToken
		}
		return identity, nil
	}}
}

func TestSignInWithGoogle_NewUser(t *testing.T) {
	env := newTestEnv(t, googleVerifier(&GoogleIdentity{Subject: "g-1", Email: "b@x.com", Name: "Bob"}))

	result, err := env.svc.SignInWithGoogle(context.Background(), "valid-id-token")
	if err != nil {
		t.Fatalf("SignInWithGoogle error: %v", err)
	}
	if result.User.Provider != model.ProviderGoogle || result.User.GoogleID != "g-1" || result.User.Name != "Bob" {
		t.Errorf("unexpected user: %+v", result.User)
	}
	if userID, err := env.tokens.Parse(result.Token); err != nil || userID != result.User.ID {
		t.Errorf("token resolves to %q (err=%v), want %q", userID, err, result.User.ID)
	}
	if env.metrics.signIns["google"] != 1 {
		t.Errorf("signIns[google] = %d, want 1", env.metrics.signIns["google"])
	}
}

func TestSignInWithGoogle_DefaultName(t *testing.T) {
	env := newTestEnv(t, googleVerifier(&GoogleIdentity{Subject: "g-1", Email: "b@x.com"}))

	result, err := env.svc.SignInWithGoogle(context.Background(), "valid-id-token")
	if err != nil {
		t.Fatalf("SignInWithGoogle error: %v", err)
	}
	if result.User.Name != "Google User" {
		t.Errorf("Name = %q, want Google User", result.User.Name)
	}
}

func TestSignInWithGoogle_LinksOTPUserKeepingProvider(t *testing.T) {
	env := newTestEnv(t, googleVerifier(&GoogleIdentity{Subject: "g-7", Email: "a@x.com", Name: "A"}))
	env.users.put(&model.User{ID: "u-1", Email: "a@x.com", Provider: model.ProviderOTP})

	result, err := env.svc.SignInWithGoogle(context.Background(), "valid-id-token")
	if err != nil {
		t.Fatalf("SignInWithGoogle error: %v", err)
	}
	if result.User.ID != "u-1" {
		t.Errorf("User.ID = %q, want u-1", result.User.ID)
	}
	if result.User.Provider != model.ProviderOTP {
		t.Errorf("Provider = %q, want otp (unchanged)", result.User.Provider)
	}
	if result.User.GoogleID != "g-7" {
		t.Errorf("GoogleID = %q, want g-7", result.User.GoogleID)
	}
	if len(env.users.linked) != 1 {
		t.Errorf("LinkGoogleID calls = %d, want 1", len(env.users.linked))
	}
}

func TestSignInWithGoogle_ExistingGoogleUser_NoMutation(t *testing.T) {
	env := newTestEnv(t, googleVerifier(&GoogleIdentity{Subject: "g-1", Email: "b@x.com", Name: "Bob"}))
	env.users.put(&model.User{ID: "u-g", Email: "b@x.com", GoogleID: "g-1", Provider: model.ProviderGoogle})

	result, err := env.svc.SignInWithGoogle(context.Background(), "valid-id-token")
	if err != nil {
		t.Fatalf("SignInWithGoogle error: %v", err)
	}
	if result.User.ID != "u-g" {
		t.Errorf("User.ID = %q, want u-g", result.User.ID)
	}
	if len(env.users.linked) != 0 {
		t.Error("google user should not be re-linked")
	}
}

func TestSignInWithGoogle_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		idToken  string
		identity *GoogleIdentity
		wantCode string
	}{
		{"idTokenが空", "", nil, model.ErrCodeValidation},
		{"検証失敗", "forged-token", nil, model.ErrCodeInvalidCredential},
		{"emailクレームが無い", "valid-id-token", &GoogleIdentity{Subject: "g-1"}, model.ErrCodeInvalidCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, googleVerifier(tt.identity))
			_, err := env.svc.SignInWithGoogle(context.Background(), tt.idToken)
			assertAPIErrorCode(t, err, tt.wantCode)
			if len(env.users.byEmail) != 0 {
				t.Error("no user should be created")
			}
		})
	}
}

// Googleで登録したメールアドレスはOTPを発行できないシナリオ
func TestGoogleThenSendOTP_Conflict(t *testing.T) {
	env := newTestEnv(t, googleVerifier(&GoogleIdentity{Subject: "g-1", Email: "b@x.com", Name: "B"}))

	if _, err := env.svc.SignInWithGoogle(context.Background(), "valid-id-token"); err != nil {
		t.Fatalf("SignInWithGoogle error: %v", err)
	}

	_, err := env.svc.SendOTP(context.Background(), SendOTPInput{Email: "b@x.com", Name: "B"})
	assertAPIErrorCode(t, err, model.ErrCodeProviderConflict)
	if env.otps.countFor("b@x.com") != 0 {
		t.Error("no code should be created")
	}
}

func TestSignInWithGoogle_FindErrorPropagates(t *testing.T) {
	env := newTestEnv(t, googleVerifier(&GoogleIdentity{Subject: "g-1", Email: "b@x.com"}))
	env.users.findErr = errors.New("db down")

	_, err := env.svc.SignInWithGoogle(context.Background(), "valid-id-token")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestParseDOB(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"空文字", "", "", false},
		{"日付のみ", "2000-01-31", "2000-01-31", false},
		{"RFC3339", "2000-01-31T00:00:00Z", "2000-01-31", false},
		{"不正", "31/01/2000", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDOB(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want == "" {
				if got != nil {
					t.Errorf("got %v, want nil", got)
				}
				return
			}
			if got == nil || got.Format(time.DateOnly) != tt.want {
				t.Errorf("got %v, want %s", got, tt.want)
			}
		})
	}
}
