// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultNoteTitle はタイトル未指定時に使用するノートのタイトル。
const DefaultNoteTitle = "Untitled"

// Note はユーザーが所有するテキストノートを表す。
type Note struct {
	ID        string
	OwnerID   string
	Title     string
	Content   string // サニタイズ済みHTML
	CreatedAt time.Time
	UpdatedAt time.Time
}
