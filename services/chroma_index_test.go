package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromaCollectionPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

// fakeChroma answers the handful of Chroma v2 endpoints the index uses and
// records the decoded request bodies per operation.
type fakeChroma struct {
	mu          sync.Mutex
	bodies      map[string][]map[string]any
	queryResult string
}

func (f *fakeChroma) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/api/v2/pre-flight-checks" {
		_, _ = w.Write([]byte(`{"max_batch_size":100}`))
		return
	}

	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	op := "create"
	if rest := strings.TrimPrefix(r.URL.Path, chromaCollectionPath+"/col-1/"); rest != r.URL.Path {
		op = rest
	} else if r.URL.Path != chromaCollectionPath {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	f.bodies[op] = append(f.bodies[op], body)
	f.mu.Unlock()

	switch op {
	case "create":
		_, _ = w.Write([]byte(`{"id":"col-1","name":"ai-notes","tenant":"default_tenant","database":"default_database","metadata":{}}`))
	case "query":
		f.mu.Lock()
		result := f.queryResult
		f.mu.Unlock()
		_, _ = w.Write([]byte(result))
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

func (f *fakeChroma) setQueryResult(result string) {
	f.mu.Lock()
	f.queryResult = result
	f.mu.Unlock()
}

func (f *fakeChroma) last(t *testing.T, op string) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.bodies[op], "no %s request", op)
	return f.bodies[op][len(f.bodies[op])-1]
}

func newChromaIndex(t *testing.T) (*ChromaIndex, *fakeChroma) {
	t.Helper()
	fake := &fakeChroma{
		bodies:      make(map[string][]map[string]any),
		queryResult: `{"ids":[[]],"distances":[[]]}`,
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(srv.URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	collection, err := OpenChromaCollection(context.Background(), client, "ai-notes", &fakeEmbedder{})
	require.NoError(t, err)
	return NewChromaIndex(collection, "fake-embed"), fake
}

func TestOpenChromaCollectionTagsModel(t *testing.T) {
	_, fake := newChromaIndex(t)

	body := fake.last(t, "create")
	assert.Equal(t, "ai-notes", body["name"])
	assert.Equal(t, true, body["get_or_create"])
	meta, ok := body["metadata"].(map[string]any)
	require.True(t, ok, "metadata: %v", body["metadata"])
	assert.Equal(t, "fake-embed", meta[metaEmbeddingModel])
	assert.Equal(t, "cosine", meta["hnsw:space"])
}

func TestChromaIndexUpsertCarriesOwnerAndModel(t *testing.T) {
	idx, fake := newChromaIndex(t)

	require.NoError(t, idx.Upsert(context.Background(), "n1", []float32{1, 0.5}, VectorMetadata{OwnerID: "u1"}))

	body := fake.last(t, "upsert")
	assert.Equal(t, []any{"n1"}, body["ids"])
	assert.Equal(t, []any{[]any{1.0, 0.5}}, body["embeddings"])
	assert.Equal(t, []any{map[string]any{
		metaOwnerID:        "u1",
		metaEmbeddingModel: "fake-embed",
	}}, body["metadatas"])
}

func TestChromaIndexQueryFiltersByOwnerAndModel(t *testing.T) {
	idx, fake := newChromaIndex(t)
	fake.setQueryResult(`{"ids":[["b","a"]],"distances":[[0.25,0.75]]}`)

	matches, err := idx.Query(context.Background(), []float32{1, 0}, 4, "u1")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "b", matches[0].ID)
	assert.InDelta(t, 0.75, matches[0].Score, 1e-6)
	assert.Equal(t, "a", matches[1].ID)
	assert.InDelta(t, 0.25, matches[1].Score, 1e-6)

	body := fake.last(t, "query")
	assert.Equal(t, 4.0, body["n_results"])
	assert.Equal(t, []any{[]any{1.0, 0.0}}, body["query_embeddings"])
	assert.Equal(t, map[string]any{"$and": []any{
		map[string]any{metaOwnerID: map[string]any{"$eq": "u1"}},
		map[string]any{metaEmbeddingModel: map[string]any{"$eq": "fake-embed"}},
	}}, body["where"])
}

func TestChromaIndexQueryWithoutResults(t *testing.T) {
	idx, fake := newChromaIndex(t)
	fake.setQueryResult(`{"ids":[]}`)

	matches, err := idx.Query(context.Background(), []float32{1, 0}, 4, "u1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromaIndexDeleteByID(t *testing.T) {
	idx, fake := newChromaIndex(t)

	require.NoError(t, idx.Delete(context.Background(), "n1"))
	assert.Equal(t, []any{"n1"}, fake.last(t, "delete")["ids"])
}

func TestChromaEmbeddingFunctionUsesEmbedder(t *testing.T) {
	embedder := &fakeEmbedder{}
	ef := chromaEmbeddingFunction{embedder: embedder}

	docs, err := ef.EmbedDocuments(context.Background(), []string{"pasta recipe", "garden"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 2, embedder.callCount())

	q, err := ef.EmbedQuery(context.Background(), "tomato")
	require.NoError(t, err)
	assert.Equal(t, len(fakeVocabulary)+1, len(q.ContentAsFloat32()))
}
