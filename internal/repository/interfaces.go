// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/notesapp/internal/model"
)

// ErrEmailTaken はメールアドレスが既に他のユーザーで使用されている場合に返される。
// 同一メールでの同時登録の競合で発生する。
var ErrEmailTaken = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスの完全一致でユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが重複する場合はErrEmailTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// LinkGoogleID は既存ユーザーにGoogleのsubject IDを紐付ける。providerは変更しない。
	LinkGoogleID(ctx context.Context, userID, googleID string, updatedAt time.Time) error
}

// OTPRepository はワンタイムコードの永続化インターフェース。
type OTPRepository interface {
	// Create はワンタイムコードを保存する。同一メールの既存コードは削除しない。
	Create(ctx context.Context, code *model.OneTimeCode) error

	// FindValid はemailとcodeが完全一致し、かつnow時点で有効期限内のコードを取得する。
	// 見つからない場合はnilを返す。
	FindValid(ctx context.Context, email, code string, now time.Time) (*model.OneTimeCode, error)

	// DeleteByEmail は指定メールアドレスの全コードを削除し、削除件数を返す。
	DeleteByEmail(ctx context.Context, email string) (int64, error)
}

// NoteRepository はノートの永続化インターフェース。
// すべての読み取り・削除は所有者IDでスコープされる。
type NoteRepository interface {
	// Create はノートを作成する。
	Create(ctx context.Context, note *model.Note) error

	// ListByOwner は所有者のノート一覧をcreated_at降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Note, error)

	// DeleteByIDAndOwner はIDと所有者が一致するノートを削除する。
	// 削除対象が存在しなかった場合はfalseを返す。
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error)
}
