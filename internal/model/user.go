// Package model はドメインモデルを定義する。
package model

import "time"

// Provider はユーザーの登録経路を表す。
type Provider string

const (
	// ProviderOTP はメールのワンタイムパスワードで登録されたユーザー。
	ProviderOTP Provider = "otp"
	// ProviderGoogle はGoogleサインインで登録されたユーザー。
	// 一度googleになったユーザーはOTPでログインできない。
	ProviderGoogle Provider = "google"
)

// User はサービス利用ユーザーを表す。
// Emailは全体で一意（完全一致で比較する）。
type User struct {
	ID        string
	Name      string
	Email     string
	DOB       *time.Time
	GoogleID  string // 未連携の場合は空文字
	Provider  Provider
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OneTimeCode はメールで送信する6桁のワンタイムコードを表す。
// 同一メールアドレスに対して複数の有効なコードが同時に存在しうる。
type OneTimeCode struct {
	ID        string
	Email     string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsValidAt は指定時刻においてコードが有効期限内かを返す。
func (c *OneTimeCode) IsValidAt(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}
