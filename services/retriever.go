package services

import (
	"context"
	"errors"
	"strings"

	"github/itish2003/ainotes/models"

	"github.com/sirupsen/logrus"
)

// Default retrieval parameters of the chat pipeline.
const (
	DefaultWindowSize = 6
	DefaultTopK       = 4
)

// TruncateConversation keeps the last n messages, oldest first.
func TruncateConversation(messages []models.ChatMessage, n int) []models.ChatMessage {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// RetrievalResult holds the notes chosen as context, most relevant first.
type RetrievalResult struct {
	Notes []models.Note
}

// IDs lists the note IDs in relevance order.
func (r *RetrievalResult) IDs() []string {
	ids := make([]string, 0, len(r.Notes))
	for _, n := range r.Notes {
		ids = append(ids, n.ID)
	}
	return ids
}

// ContextRetriever finds the caller's notes most relevant to a conversation.
type ContextRetriever struct {
	store    NoteStore
	index    VectorIndex
	embedder Embedder
	log      *logrus.Entry
}

func NewContextRetriever(store NoteStore, index VectorIndex, embedder Embedder) *ContextRetriever {
	return &ContextRetriever{
		store:    store,
		index:    index,
		embedder: embedder,
		log:      logrus.WithField("component", "retriever"),
	}
}

// Retrieve embeds the window, queries the index for the owner's k nearest
// notes and resolves them from the record store in index order. IDs that no
// longer resolve are dropped, as are notes belonging to anyone else.
func (r *ContextRetriever) Retrieve(ctx context.Context, window []models.ChatMessage, ownerID string, k int) (*RetrievalResult, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if len(window) == 0 {
		return nil, invalidField("messages", "min")
	}
	if k <= 0 {
		k = DefaultTopK
	}

	contents := make([]string, 0, len(window))
	for _, m := range window {
		contents = append(contents, m.Content)
	}
	query := strings.Join(contents, "\n")

	vector, err := embedQuery(ctx, r.embedder, query)
	if err != nil {
		if !errors.Is(err, ErrEmbeddingFailed) {
			err = wrap(ErrEmbeddingFailed, err)
		}
		return nil, wrap(ErrRetrievalFailed, err)
	}

	matches, err := r.index.Query(ctx, vector, k, ownerID)
	if err != nil {
		return nil, wrap(ErrRetrievalFailed, err)
	}
	if len(matches) == 0 {
		r.log.WithField("owner_id", ownerID).Debug("RETRIEVER: No matching notes")
		return &RetrievalResult{Notes: []models.Note{}}, nil
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	found, err := r.store.GetNotesByIDs(ctx, ids)
	if err != nil {
		return nil, wrap(ErrRetrievalFailed, err)
	}

	byID := make(map[string]models.Note, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}
	notes := make([]models.Note, 0, len(ids))
	for _, id := range ids {
		note, ok := byID[id]
		if !ok {
			r.log.Warnf("RETRIEVER: Index returned %s but the note no longer exists", id)
			continue
		}
		if note.OwnerID != ownerID {
			r.log.WithField("owner_id", ownerID).Errorf("RETRIEVER: Index returned note %s of another owner, dropping it", id)
			continue
		}
		notes = append(notes, note)
	}

	r.log.WithField("owner_id", ownerID).Debugf("RETRIEVER: Retrieved %d of %d matches", len(notes), len(matches))
	return &RetrievalResult{Notes: notes}, nil
}
