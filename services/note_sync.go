package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github/itish2003/ainotes/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NoteSynchronizer owns every note mutation. Each create, update and delete
// writes the record store and the vector index inside one record-store
// transaction, with the vector write as the last action before commit, so a
// committed note always has exactly one vector under the same ID.
type NoteSynchronizer struct {
	store    NoteStore
	index    VectorIndex
	embedder Embedder
	log      *logrus.Entry
}

func NewNoteSynchronizer(store NoteStore, index VectorIndex, embedder Embedder) *NoteSynchronizer {
	return &NoteSynchronizer{
		store:    store,
		index:    index,
		embedder: embedder,
		log:      logrus.WithField("component", "synchronizer"),
	}
}

// Create stores a new note for ownerID and indexes its embedding.
func (s *NoteSynchronizer) Create(ctx context.Context, title, content, ownerID string) (*models.Note, error) {
	return s.create(ctx, &models.Note{
		Title:   title,
		Content: content,
		OwnerID: ownerID,
	})
}

func (s *NoteSynchronizer) create(ctx context.Context, note *models.Note) (*models.Note, error) {
	if note.OwnerID == "" {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(note.Title) == "" {
		return nil, invalidField("title", "required")
	}
	note.ID = uuid.NewString()

	vector, err := s.embed(ctx, note.EmbeddingText())
	if err != nil {
		return nil, err
	}

	err = s.inTransaction(ctx, note.ID,
		func(tx NoteTx) error {
			return tx.CreateNote(ctx, note)
		},
		func(ctx context.Context) error {
			return s.index.Upsert(ctx, note.ID, vector, s.meta(note.OwnerID))
		},
		func(ctx context.Context) error {
			return s.index.Delete(ctx, note.ID)
		},
	)
	if err != nil {
		return nil, err
	}

	s.log.WithField("owner_id", note.OwnerID).Infof("SYNC: Created note %s", note.ID)
	return note, nil
}

// Update replaces title and content of a note owned by ownerID and
// re-indexes it. Applying the same update twice leaves the same state.
func (s *NoteSynchronizer) Update(ctx context.Context, id, title, content, ownerID string) (*models.Note, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if id == "" {
		return nil, invalidField("id", "required")
	}
	if strings.TrimSpace(title) == "" {
		return nil, invalidField("title", "required")
	}
	// Ownership is settled before spending an embedding call.
	if _, err := s.authorize(ctx, id, ownerID); err != nil {
		return nil, err
	}

	vector, err := s.embed(ctx, title+"\n\n"+content)
	if err != nil {
		return nil, err
	}

	var previous, updated models.Note
	err = s.inTransaction(ctx, id,
		func(tx NoteTx) error {
			note, err := tx.LockNote(ctx, id)
			if err != nil {
				return err
			}
			if note.OwnerID != ownerID {
				return ErrUnauthorized
			}
			previous = *note
			note.Title = title
			note.Content = content
			if err := tx.SaveNote(ctx, note); err != nil {
				return err
			}
			updated = *note
			return nil
		},
		func(ctx context.Context) error {
			return s.index.Upsert(ctx, id, vector, s.meta(ownerID))
		},
		func(ctx context.Context) error {
			return s.reindex(ctx, previous)
		},
	)
	if err != nil {
		return nil, err
	}

	s.log.WithField("owner_id", ownerID).Infof("SYNC: Updated note %s", id)
	return &updated, nil
}

// Delete removes a note owned by ownerID from both stores.
func (s *NoteSynchronizer) Delete(ctx context.Context, id, ownerID string) error {
	if ownerID == "" {
		return ErrUnauthorized
	}
	if id == "" {
		return invalidField("id", "required")
	}
	if _, err := s.authorize(ctx, id, ownerID); err != nil {
		return err
	}

	var previous models.Note
	err := s.inTransaction(ctx, id,
		func(tx NoteTx) error {
			note, err := tx.LockNote(ctx, id)
			if err != nil {
				return err
			}
			if note.OwnerID != ownerID {
				return ErrUnauthorized
			}
			previous = *note
			return tx.DeleteNote(ctx, id)
		},
		func(ctx context.Context) error {
			return s.index.Delete(ctx, id)
		},
		func(ctx context.Context) error {
			return s.reindex(ctx, previous)
		},
	)
	if err != nil {
		return err
	}

	s.log.WithField("owner_id", ownerID).Infof("SYNC: Deleted note %s", id)
	return nil
}

// List returns the owner's notes, most recently updated first.
func (s *NoteSynchronizer) List(ctx context.Context, ownerID string) ([]models.Note, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	notes, err := s.store.ListNotes(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

// UpsertFromSource creates or updates the note bound to a source file.
func (s *NoteSynchronizer) UpsertFromSource(ctx context.Context, ownerID, path, title, content string) (*models.Note, error) {
	existing, err := s.store.FindBySourcePath(ctx, ownerID, path)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.create(ctx, &models.Note{
			Title:      title,
			Content:    content,
			OwnerID:    ownerID,
			SourcePath: path,
		})
	case err != nil:
		return nil, err
	}
	if existing.Title == title && existing.Content == content {
		return existing, nil
	}
	return s.Update(ctx, existing.ID, title, content, ownerID)
}

// DeleteBySource deletes the note bound to a source file, if any.
func (s *NoteSynchronizer) DeleteBySource(ctx context.Context, ownerID, path string) error {
	existing, err := s.store.FindBySourcePath(ctx, ownerID, path)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.Delete(ctx, existing.ID, ownerID)
}

func (s *NoteSynchronizer) authorize(ctx context.Context, id, ownerID string) (*models.Note, error) {
	note, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if note.OwnerID != ownerID {
		s.log.WithField("owner_id", ownerID).Warnf("SYNC: Rejected access to note %s owned by another user", id)
		return nil, ErrUnauthorized
	}
	return note, nil
}

// inTransaction runs the record write and then the vector write inside one
// record-store transaction. A failed vector write rolls the record back. If
// the commit itself fails after the vector write, compensate restores the
// index to its previous state.
func (s *NoteSynchronizer) inTransaction(
	ctx context.Context,
	id string,
	recordWrite func(tx NoteTx) error,
	vectorWrite func(ctx context.Context) error,
	compensate func(ctx context.Context) error,
) error {
	vectorWritten := false
	err := s.store.WithinTransaction(ctx, func(tx NoteTx) error {
		if err := recordWrite(tx); err != nil {
			return err
		}
		if err := vectorWrite(ctx); err != nil {
			s.log.WithError(err).Errorf("SYNC: Vector write for note %s failed, rolling back", id)
			return wrap(ErrInternal, err)
		}
		vectorWritten = true
		return nil
	})
	if err == nil {
		return nil
	}
	if !vectorWritten {
		return classify(err)
	}

	s.log.WithError(err).Errorf("SYNC: Commit for note %s failed after the vector write, compensating", id)
	if cerr := compensate(context.WithoutCancel(ctx)); cerr != nil {
		s.log.WithError(cerr).Errorf("SYNC: Compensation for note %s failed, vector index may be stale", id)
	}
	return wrap(ErrInternal, fmt.Errorf("commit note %s: %w", id, err))
}

// reindex writes the embedding of a note's stored state back to the index.
func (s *NoteSynchronizer) reindex(ctx context.Context, note models.Note) error {
	vector, err := s.embed(ctx, note.EmbeddingText())
	if err != nil {
		return err
	}
	return s.index.Upsert(ctx, note.ID, vector, s.meta(note.OwnerID))
}

func (s *NoteSynchronizer) embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, ErrEmbeddingFailed) {
			return nil, err
		}
		return nil, wrap(ErrEmbeddingFailed, err)
	}
	if len(vector) == 0 {
		return nil, wrap(ErrEmbeddingFailed, errors.New("empty embedding"))
	}
	return vector, nil
}

func (s *NoteSynchronizer) meta(ownerID string) VectorMetadata {
	return VectorMetadata{OwnerID: ownerID, Model: s.embedder.Model()}
}

// classify passes taxonomy errors through and reports anything else as internal.
func classify(err error) error {
	for _, kind := range []error{
		ErrUnauthorized, ErrInvalidInput, ErrNotFound, ErrEmbeddingFailed,
		ErrRetrievalFailed, ErrStreamFailed, ErrInternal,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return wrap(ErrInternal, err)
}
