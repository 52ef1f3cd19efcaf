package controller

import (
	"context"
	"io"
	"net/http"

	"github/itish2003/ainotes/models"
	"github/itish2003/ainotes/services"

	"github.com/gin-gonic/gin"
)

// NoteManager is the note mutation surface used by the HTTP layer.
type NoteManager interface {
	Create(ctx context.Context, title, content, ownerID string) (*models.Note, error)
	Update(ctx context.Context, id, title, content, ownerID string) (*models.Note, error)
	Delete(ctx context.Context, id, ownerID string) error
	List(ctx context.Context, ownerID string) ([]models.Note, error)
}

// DocumentImporter creates notes from uploaded files.
type DocumentImporter interface {
	Import(ctx context.Context, ownerID, filename string, r io.ReadSeeker) (*models.Note, error)
}

// NotesController handles the /api/notes endpoints.
type NotesController struct {
	notes    NoteManager
	importer DocumentImporter
}

func NewNotesController(notes NoteManager, importer DocumentImporter) *NotesController {
	return &NotesController{notes: notes, importer: importer}
}

// ListNotes is the Gin handler for GET /api/notes.
func (nc *NotesController) ListNotes(c *gin.Context) {
	notes, err := nc.notes.List(c.Request.Context(), OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.GetAllNotesResponse{Count: len(notes), Notes: notes})
}

// CreateNote is the Gin handler for POST /api/notes.
func (nc *NotesController) CreateNote(c *gin.Context) {
	var req models.CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.NewValidationError(err))
		return
	}

	note, err := nc.notes.Create(c.Request.Context(), req.Title, contentOf(req.Content), OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.CreateNoteResponse{Note: note})
}

// UpdateNote is the Gin handler for PUT /api/notes.
func (nc *NotesController) UpdateNote(c *gin.Context) {
	var req models.UpdateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.NewValidationError(err))
		return
	}

	note, err := nc.notes.Update(c.Request.Context(), req.ID, req.Title, contentOf(req.Content), OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.UpdateNoteResponse{UpdatedNote: note})
}

// DeleteNote is the Gin handler for DELETE /api/notes.
func (nc *NotesController) DeleteNote(c *gin.Context) {
	var req models.DeleteNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.NewValidationError(err))
		return
	}

	if err := nc.notes.Delete(c.Request.Context(), req.ID, OwnerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DeleteNoteResponse{Message: "Note deleted"})
}

// ImportNote is the Gin handler for POST /api/notes/import. It expects a
// multipart form with a single "file" field.
func (nc *NotesController) ImportNote(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondError(c, services.NewValidationError(err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, services.NewValidationError(err))
		return
	}
	defer f.Close()

	note, err := nc.importer.Import(c.Request.Context(), OwnerID(c), fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.CreateNoteResponse{Note: note})
}

func contentOf(content *string) string {
	if content == nil {
		return ""
	}
	return *content
}
