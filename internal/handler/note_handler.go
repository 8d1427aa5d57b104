package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/notesapp/internal/middleware"
	"github.com/hitoshi/notesapp/internal/model"
)

// noteDeletedMessage はノート削除成功時のメッセージ。
const noteDeletedMessage = "Note deleted"

// NoteServiceInterface はノートハンドラーが必要とするサービスインターフェース。
type NoteServiceInterface interface {
	// List は所有者のノート一覧を新しい順に返す。
	List(ctx context.Context, ownerID string) ([]*model.Note, error)
	// Create はノートを作成する。
	Create(ctx context.Context, ownerID, title, content string) (*model.Note, error)
	// Delete は所有者のノートを削除する。
	Delete(ctx context.Context, ownerID, noteID string) error
}

// NoteHandler はノート管理のHTTPハンドラー。
type NoteHandler struct {
	service NoteServiceInterface
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface) *NoteHandler {
	return &NoteHandler{service: service}
}

// createNoteRequest はノート作成リクエストのボディ。
type createNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type listNotesResponse struct {
	Notes []noteResponse `json:"notes"`
}

type noteEnvelope struct {
	Note noteResponse `json:"note"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// List はログインユーザーのノート一覧を返す。
// GET /api/notes
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	notes, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := listNotesResponse{Notes: make([]noteResponse, 0, len(notes))}
	for _, n := range notes {
		resp.Notes = append(resp.Notes, toNoteResponse(n))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はノートを作成する。
// POST /api/notes
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createNoteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	note, err := h.service.Create(r.Context(), userID, req.Title, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, noteEnvelope{Note: toNoteResponse(note)})
}

// Delete はノートを削除する。
// DELETE /api/notes/{id}
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: noteDeletedMessage})
}

// requireUserID はコンテキストからユーザーIDを取得する。
// 取得できない場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return "", false
	}
	return userID, true
}
