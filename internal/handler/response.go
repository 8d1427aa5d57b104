package handler

import (
	"time"

	"github.com/hitoshi/notesapp/internal/model"
)

// userResponse はユーザー情報のAPIレスポンス。
// フィールド名はブラウザクライアントが参照する形式に合わせる。
type userResponse struct {
	ID        string     `json:"_id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	DOB       *time.Time `json:"dob,omitempty"`
	GoogleID  string     `json:"googleId,omitempty"`
	Provider  string     `json:"provider"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// noteResponse はノートのAPIレスポンス。
type noteResponse struct {
	ID        string    `json:"_id"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		DOB:       user.DOB,
		GoogleID:  user.GoogleID,
		Provider:  string(user.Provider),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func toNoteResponse(note *model.Note) noteResponse {
	return noteResponse{
		ID:        note.ID,
		Owner:     note.OwnerID,
		Title:     note.Title,
		Content:   note.Content,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}
