package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/notesapp/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したノートリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

// Create はノートを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (id, owner_id, title, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		note.ID, note.OwnerID, note.Title, note.Content, note.CreatedAt, note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// ListByOwner は所有者のノート一覧をcreated_at降順で返す。
func (r *PostgresNoteRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, title, content, created_at, updated_at
		 FROM notes
		 WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*model.Note, 0)
	for rows.Next() {
		n := &model.Note{}
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}

	return notes, nil
}

// DeleteByIDAndOwner はIDと所有者が一致するノートを1文で削除する。
func (r *PostgresNoteRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
