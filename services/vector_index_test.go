package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexQueryIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, VectorMetadata{OwnerID: "u1"}))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{0.9, 0.1}, VectorMetadata{OwnerID: "u2"}))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{0, 1}, VectorMetadata{OwnerID: "u1"}))

	matches, err := idx.Query(ctx, []float32{1, 0}, 4, "u1")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "c", matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	matches, err = idx.Query(ctx, []float32{1, 0}, 4, "nobody")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryIndexTopKAndTies(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	for _, id := range []string{"d", "b", "a", "c", "e"} {
		require.NoError(t, idx.Upsert(ctx, id, []float32{1, 1}, VectorMetadata{OwnerID: "u1"}))
	}

	matches, err := idx.Query(ctx, []float32{1, 1}, 4, "u1")
	require.NoError(t, err)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestMemoryIndexUpsertAndDeleteAreIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, VectorMetadata{OwnerID: "u1"}))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 1}, VectorMetadata{OwnerID: "u1"}))
	assert.Equal(t, 1, idx.count())
	vec, meta, ok := idx.entry("a")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, vec)
	assert.Equal(t, "u1", meta.OwnerID)

	require.NoError(t, idx.Delete(ctx, "a"))
	require.NoError(t, idx.Delete(ctx, "a"))
	assert.False(t, idx.has("a"))
}

func TestMemoryIndexFiltersForeignModels(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex().WithModel("m1")

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, VectorMetadata{OwnerID: "u1", Model: "m1"}))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{1, 0}, VectorMetadata{OwnerID: "u1", Model: "m2"}))

	matches, err := idx.Query(ctx, []float32{1, 0}, 4, "u1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}), 1e-9)
	assert.InDelta(t, 0.75, distanceToScore(0.25), 1e-9)
}
