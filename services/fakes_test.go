package services

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github/itish2003/ainotes/models"

	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps text to a deterministic vector keyed on known words so
// similarity in tests is predictable.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

var fakeVocabulary = []string{"recipe", "pasta", "garden", "tomato", "meeting", "budget"}

func (f *fakeEmbedder) Model() string { return "fake-embed" }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(fakeVocabulary)+1)
	for i, word := range fakeVocabulary {
		vec[i] = float32(strings.Count(lower, word))
	}
	// Keeps vectors non-zero for text without vocabulary words.
	vec[len(fakeVocabulary)] = 0.01
	return vec, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEmbedder) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// flakyIndex wraps a MemoryIndex and fails chosen operations.
type flakyIndex struct {
	*MemoryIndex
	failUpsert error
	failQuery  error
	failDelete error
}

func (f *flakyIndex) Upsert(ctx context.Context, id string, vector []float32, meta VectorMetadata) error {
	if f.failUpsert != nil {
		return f.failUpsert
	}
	return f.MemoryIndex.Upsert(ctx, id, vector, meta)
}

func (f *flakyIndex) Query(ctx context.Context, vector []float32, topK int, ownerID string) ([]VectorMatch, error) {
	if f.failQuery != nil {
		return nil, f.failQuery
	}
	return f.MemoryIndex.Query(ctx, vector, topK, ownerID)
}

func (f *flakyIndex) Delete(ctx context.Context, id string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.MemoryIndex.Delete(ctx, id)
}

// scriptedEngine replays fixed fragments and optionally fails after them.
type scriptedEngine struct {
	fragments []string
	failAfter error

	mu       sync.Mutex
	received [][]models.ChatMessage
	released bool
}

func (s *scriptedEngine) StreamChat(ctx context.Context, messages []models.ChatMessage) iter.Seq2[string, error] {
	s.mu.Lock()
	s.received = append(s.received, messages)
	s.mu.Unlock()
	return func(yield func(string, error) bool) {
		defer func() {
			s.mu.Lock()
			s.released = true
			s.mu.Unlock()
		}()
		for _, f := range s.fragments {
			if ctx.Err() != nil {
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if s.failAfter != nil {
			yield("", s.failAfter)
		}
	}
}

func (s *scriptedEngine) lastMessages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.received) == 0 {
		return nil
	}
	return s.received[len(s.received)-1]
}

var errBoom = errors.New("boom")

// newTestStore opens a fresh SQLite database under the test's temp dir.
func newTestStore(t *testing.T) *GormNoteStore {
	t.Helper()
	db, err := OpenDatabase("sqlite", filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	store := NewGormNoteStore(db)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store
}

// testRig wires a synchronizer and retriever against SQLite and an in-memory index.
type testRig struct {
	store    *GormNoteStore
	index    *flakyIndex
	embedder *fakeEmbedder
	sync     *NoteSynchronizer
	retr     *ContextRetriever
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	store := newTestStore(t)
	index := &flakyIndex{MemoryIndex: NewMemoryIndex()}
	embedder := &fakeEmbedder{}
	return &testRig{
		store:    store,
		index:    index,
		embedder: embedder,
		sync:     NewNoteSynchronizer(store, index, embedder),
		retr:     NewContextRetriever(store, index, embedder),
	}
}
