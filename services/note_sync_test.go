package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commitFailStore runs the transaction body and then fails as a broken
// commit would, rolling the record writes back.
type commitFailStore struct {
	*GormNoteStore
	err error
}

func (c *commitFailStore) WithinTransaction(ctx context.Context, fn func(tx NoteTx) error) error {
	return c.GormNoteStore.WithinTransaction(ctx, func(tx NoteTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return c.err
	})
}

var errCommit = errors.New("connection reset during commit")

// assertInSync checks that the note exists in both stores under the same ID
// and that the vector is the embedding of the stored text.
func assertInSync(t *testing.T, rig *testRig, id string) {
	t.Helper()
	note, err := rig.store.GetNote(context.Background(), id)
	require.NoError(t, err)
	vec, meta, ok := rig.index.entry(id)
	require.True(t, ok, "vector entry missing for %s", id)
	want, _ := (&fakeEmbedder{}).Embed(context.Background(), note.EmbeddingText())
	assert.Equal(t, want, vec)
	assert.Equal(t, note.OwnerID, meta.OwnerID)
	assert.Equal(t, "fake-embed", meta.Model)
}

func assertAbsent(t *testing.T, rig *testRig, id string) {
	t.Helper()
	_, err := rig.store.GetNote(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, rig.index.has(id))
}

func TestCreateWritesBothStores(t *testing.T) {
	rig := newTestRig(t)

	note, err := rig.sync.Create(context.Background(), "Recipe", "pasta with tomato", "u1")
	require.NoError(t, err)
	require.NotEmpty(t, note.ID)
	assert.Equal(t, "u1", note.OwnerID)
	assert.Equal(t, []string{"Recipe\n\npasta with tomato"}, rig.embedder.calls)

	assertInSync(t, rig, note.ID)
}

func TestCreateRejectsBadInput(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.sync.Create(ctx, "   ", "content", "u1")
	assert.ErrorIs(t, err, ErrInvalidInput)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["title"])

	_, err = rig.sync.Create(ctx, "Title", "content", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Zero(t, rig.embedder.callCount())
	assert.Zero(t, rig.index.count())
}

func TestCreateEmbeddingFailureLeavesNothing(t *testing.T) {
	rig := newTestRig(t)
	rig.embedder.setErr(errBoom)

	_, err := rig.sync.Create(context.Background(), "Title", "", "u1")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	notes, err := rig.store.ListNotes(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Zero(t, rig.index.count())
}

func TestCreateVectorFailureRollsBackRecord(t *testing.T) {
	rig := newTestRig(t)
	rig.index.failUpsert = errBoom

	_, err := rig.sync.Create(context.Background(), "Title", "body", "u1")
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, errBoom)

	notes, err := rig.store.ListNotes(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Zero(t, rig.index.count())
}

func TestCreateCommitFailureRemovesVector(t *testing.T) {
	rig := newTestRig(t)
	failing := NewNoteSynchronizer(&commitFailStore{GormNoteStore: rig.store, err: errCommit}, rig.index, rig.embedder)

	_, err := failing.Create(context.Background(), "Title", "body", "u1")
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, errCommit)

	notes, err := rig.store.ListNotes(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Zero(t, rig.index.count())
}

func TestUpdateReindexesAndIsIdempotent(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	note, err := rig.sync.Create(ctx, "Garden", "plant tomato", "u1")
	require.NoError(t, err)

	updated, err := rig.sync.Update(ctx, note.ID, "Garden plan", "plant tomato and basil", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Garden plan", updated.Title)
	assert.Equal(t, "plant tomato and basil", updated.Content)
	assert.Equal(t, note.ID, updated.ID)
	assertInSync(t, rig, note.ID)

	firstVec, _, _ := rig.index.entry(note.ID)
	again, err := rig.sync.Update(ctx, note.ID, "Garden plan", "plant tomato and basil", "u1")
	require.NoError(t, err)
	assert.Equal(t, updated.Title, again.Title)
	assert.Equal(t, updated.Content, again.Content)
	secondVec, _, _ := rig.index.entry(note.ID)
	assert.Equal(t, firstVec, secondVec)
	assert.Equal(t, 1, rig.index.count())
	assertInSync(t, rig, note.ID)
}

func TestUpdateByNonOwnerChangesNothing(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	note, err := rig.sync.Create(ctx, "Budget", "meeting budget", "u1")
	require.NoError(t, err)
	callsBefore := rig.embedder.callCount()
	vecBefore, _, _ := rig.index.entry(note.ID)

	_, err = rig.sync.Update(ctx, note.ID, "Hijacked", "x", "u2")
	assert.ErrorIs(t, err, ErrUnauthorized)

	stored, err := rig.store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budget", stored.Title)
	vecAfter, meta, _ := rig.index.entry(note.ID)
	assert.Equal(t, vecBefore, vecAfter)
	assert.Equal(t, "u1", meta.OwnerID)
	assert.Equal(t, callsBefore, rig.embedder.callCount(), "no embedding call for an unauthorized update")
}

func TestUpdateMissingNote(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.sync.Update(context.Background(), "missing", "Title", "", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, rig.embedder.callCount())
}

func TestUpdateVectorFailureKeepsOldRecord(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	note, err := rig.sync.Create(ctx, "Recipe", "pasta", "u1")
	require.NoError(t, err)

	rig.index.failUpsert = errBoom
	_, err = rig.sync.Update(ctx, note.ID, "Recipe v2", "garden pasta", "u1")
	assert.ErrorIs(t, err, ErrInternal)

	rig.index.failUpsert = nil
	stored, err := rig.store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Recipe", stored.Title)
	assertInSync(t, rig, note.ID)
}

func TestUpdateCommitFailureRestoresVector(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	note, err := rig.sync.Create(ctx, "Recipe", "pasta", "u1")
	require.NoError(t, err)

	failing := NewNoteSynchronizer(&commitFailStore{GormNoteStore: rig.store, err: errCommit}, rig.index, rig.embedder)
	_, err = failing.Update(ctx, note.ID, "Budget", "meeting budget", "u1")
	assert.ErrorIs(t, err, ErrInternal)

	stored, err := rig.store.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Recipe", stored.Title)
	assertInSync(t, rig, note.ID)
}

func TestDeleteRemovesFromBothStores(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	note, err := rig.sync.Create(ctx, "Recipe", "pasta", "u1")
	require.NoError(t, err)

	require.NoError(t, rig.sync.Delete(ctx, note.ID, "u1"))
	assertAbsent(t, rig, note.ID)

	err = rig.sync.Delete(ctx, note.ID, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteByNonOwnerChangesNothing(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	note, err := rig.sync.Create(ctx, "Recipe", "pasta", "u1")
	require.NoError(t, err)

	err = rig.sync.Delete(ctx, note.ID, "u2")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assertInSync(t, rig, note.ID)
}

func TestDeleteVectorFailureKeepsRecord(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	note, err := rig.sync.Create(ctx, "Recipe", "pasta", "u1")
	require.NoError(t, err)

	rig.index.failDelete = errBoom
	err = rig.sync.Delete(ctx, note.ID, "u1")
	assert.ErrorIs(t, err, ErrInternal)
	assertInSync(t, rig, note.ID)
}

func TestDeleteCommitFailureRestoresVector(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	note, err := rig.sync.Create(ctx, "Recipe", "pasta", "u1")
	require.NoError(t, err)

	failing := NewNoteSynchronizer(&commitFailStore{GormNoteStore: rig.store, err: errCommit}, rig.index, rig.embedder)
	err = failing.Delete(ctx, note.ID, "u1")
	assert.ErrorIs(t, err, ErrInternal)
	assertInSync(t, rig, note.ID)
}

func TestListIsOwnerScoped(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	_, err := rig.sync.Create(ctx, "Mine", "", "u1")
	require.NoError(t, err)
	_, err = rig.sync.Create(ctx, "Theirs", "", "u2")
	require.NoError(t, err)

	notes, err := rig.sync.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Mine", notes[0].Title)

	notes, err = rig.sync.List(ctx, "u3")
	require.NoError(t, err)
	assert.NotNil(t, notes)
	assert.Empty(t, notes)

	_, err = rig.sync.List(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpsertAndDeleteBySource(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	created, err := rig.sync.UpsertFromSource(ctx, "u1", "/inbox/garden.md", "garden", "tomato")
	require.NoError(t, err)
	assert.Equal(t, "/inbox/garden.md", created.SourcePath)
	assertInSync(t, rig, created.ID)

	calls := rig.embedder.callCount()
	same, err := rig.sync.UpsertFromSource(ctx, "u1", "/inbox/garden.md", "garden", "tomato")
	require.NoError(t, err)
	assert.Equal(t, created.ID, same.ID)
	assert.Equal(t, calls, rig.embedder.callCount(), "unchanged source is not re-embedded")

	changed, err := rig.sync.UpsertFromSource(ctx, "u1", "/inbox/garden.md", "garden", "tomato and pasta")
	require.NoError(t, err)
	assert.Equal(t, created.ID, changed.ID)
	assert.Equal(t, "tomato and pasta", changed.Content)
	assertInSync(t, rig, created.ID)

	require.NoError(t, rig.sync.DeleteBySource(ctx, "u1", "/inbox/garden.md"))
	assertAbsent(t, rig, created.ID)
	require.NoError(t, rig.sync.DeleteBySource(ctx, "u1", "/inbox/garden.md"))
}
