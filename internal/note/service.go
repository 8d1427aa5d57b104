// Package note はノート管理のドメインロジックを提供する。
package note

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/notesapp/internal/model"
	"github.com/hitoshi/notesapp/internal/repository"
)

// Service はノート管理のサービス層。
// すべての操作は所有者IDでスコープされる。
type Service struct {
	noteRepo repository.NoteRepository
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(noteRepo repository.NoteRepository) *Service {
	return &Service{
		noteRepo: noteRepo,
		now:      time.Now,
	}
}

// List は所有者のノート一覧を新しい順に返す。
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.Note, error) {
	notes, err := s.noteRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ノート一覧の取得に失敗しました: %w", err)
	}
	return notes, nil
}

// Create はノートを作成する。
// タイトル未指定の場合はUntitled、本文未指定の場合は空文字になる。
// 本文はクライアントがテキストとして表示するため、受け取ったまま保存する。
func (s *Service) Create(ctx context.Context, ownerID, title, content string) (*model.Note, error) {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultNoteTitle
	}

	now := s.now()
	n := &model.Note{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.noteRepo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("ノートの作成に失敗しました: %w", err)
	}
	return n, nil
}

// Delete は所有者が一致するノートを削除する。
// IDがUUID形式でない場合、または所有者が異なる場合はNOTE_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, ownerID, noteID string) error {
	if _, err := uuid.Parse(noteID); err != nil {
		return model.NewNoteNotFoundError(noteID)
	}

	deleted, err := s.noteRepo.DeleteByIDAndOwner(ctx, noteID, ownerID)
	if err != nil {
		return fmt.Errorf("ノートの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNoteNotFoundError(noteID)
	}
	return nil
}
