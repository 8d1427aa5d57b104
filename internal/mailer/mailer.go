// Package mailer はワンタイムコードのメール送信を提供する。
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

const otpSubject = "Your OTP for Notes App"

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // 例: "Notes App" <no-reply@notesapp.dev>
}

// sender はgo-mailクライアントの送信部分のインターフェース。
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer はSMTPサーバー経由でOTPメールを送信する。
type SMTPMailer struct {
	client sender
	from   string
}

// NewSMTPMailer はSMTPMailerを生成する。
// Usernameが空の場合はSMTP認証を行わない。
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(10 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// SendOTP はコードと有効期間を含むメールを送信する。
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string, expiry time.Duration) error {
	msg, err := buildOTPMessage(m.from, to, code, expiry)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send otp email: %w", err)
	}
	return nil
}

// buildOTPMessage はテキストとHTMLの両方の本文を持つメッセージを組み立てる。
func buildOTPMessage(from, to, code string, expiry time.Duration) (*mail.Msg, error) {
	minutes := int(expiry.Minutes())

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(otpSubject)
	msg.SetBodyString(mail.TypeTextPlain,
		fmt.Sprintf("Your OTP is %s. It expires in %d minutes.", code, minutes))
	msg.AddAlternativeString(mail.TypeTextHTML,
		fmt.Sprintf("<p>Your OTP is <strong>%s</strong>. It expires in %d minutes.</p>", code, minutes))

	return msg, nil
}

// LogMailer はメールを送信せずログに出力する開発用の実装。
// SMTP_HOSTが未設定の場合に使用する。
type LogMailer struct{}

// SendOTP はOTPメールの内容をログに出力する。
func (LogMailer) SendOTP(_ context.Context, to, code string, expiry time.Duration) error {
	slog.Info("otp email (not sent, smtp not configured)",
		slog.String("to", to),
		slog.String("subject", otpSubject),
		slog.String("code", code),
		slog.Int("expires_in_minutes", int(expiry.Minutes())),
	)
	return nil
}
