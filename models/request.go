package models

// CreateNoteRequest is the body of POST /api/notes.
type CreateNoteRequest struct {
	Title   string  `json:"title" binding:"required,max=500"`
	Content *string `json:"content"`
}

// UpdateNoteRequest is the body of PUT /api/notes.
type UpdateNoteRequest struct {
	ID      string  `json:"id" binding:"required"`
	Title   string  `json:"title" binding:"required,max=500"`
	Content *string `json:"content"`
}

// DeleteNoteRequest is the body of DELETE /api/notes.
type DeleteNoteRequest struct {
	ID string `json:"id" binding:"required"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`
}
