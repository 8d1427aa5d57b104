// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, note, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeProviderConflict  = "PROVIDER_CONFLICT"
	ErrCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
	ErrCodeNoteNotFound      = "NOTE_NOT_FOUND"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewValidationError は必須項目の欠落や形式不正を表すエラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewProviderConflictError は登録済みの認証方式と異なる方式でログインしようとした場合のエラーを生成する。
// 現状はGoogleで登録されたメールアドレスへのOTPログインでのみ発生する。
func NewProviderConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderConflict,
		Message:  "このメールアドレスはGoogleで登録されています。",
		Category: "auth",
		Action:   "Googleでサインインしてください。",
	}
}

// NewInvalidCredentialError はOTPまたはGoogle IDトークンが無効な場合のエラーを生成する。
func NewInvalidCredentialError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  message,
		Category: "auth",
		Action:   "もう一度認証をやり直してください。",
	}
}

// NewUnauthenticatedError はBearerトークンが無い、または無効な場合のエラーを生成する。
// 失敗理由はレスポンスでは区別しない。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewNoteNotFoundError はノートが存在しない、または所有者が異なる場合のエラーを生成する。
func NewNoteNotFoundError(noteID string) *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  fmt.Sprintf("指定されたノートが見つかりません: %s", noteID),
		Category: "note",
		Action:   "ノート一覧を再読み込みしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInternalError は内部エラーの統一レスポンス用エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
