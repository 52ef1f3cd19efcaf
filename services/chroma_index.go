package services

import (
	"context"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/sirupsen/logrus"
)

const (
	metaOwnerID        = "owner_id"
	metaEmbeddingModel = "embedding_model"
)

// ChromaIndex stores note vectors in a Chroma collection, one document per note.
type ChromaIndex struct {
	collection chromago.Collection
	model      string
	log        *logrus.Entry
}

func NewChromaIndex(collection chromago.Collection, model string) *ChromaIndex {
	return &ChromaIndex{
		collection: collection,
		model:      model,
		log:        logrus.WithField("component", "chroma"),
	}
}

// OpenChromaCollection gets or creates the notes collection, tagging it with
// the embedding model so mixed embedding spaces are easy to spot. The
// collection embeds through embedder, never through chroma's bundled model.
func OpenChromaCollection(ctx context.Context, client chromago.Client, name string, embedder Embedder) (chromago.Collection, error) {
	logrus.WithField("component", "chroma").Infof("CHROMA: Getting or creating collection '%s'", name)

	collection, err := client.GetOrCreateCollection(
		ctx,
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "AI notes embeddings"),
				chromago.NewStringAttribute(metaEmbeddingModel, embedder.Model()),
			),
		),
		chromago.WithHNSWSpaceCreate(embeddings.COSINE),
		chromago.WithEmbeddingFunctionCreate(chromaEmbeddingFunction{embedder: embedder}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %q: %w", name, err)
	}
	return collection, nil
}

// chromaEmbeddingFunction adapts an Embedder to chroma's embedding function.
// Upserts and queries always carry their own vectors, so it only runs if a
// request ever arrives with text alone.
type chromaEmbeddingFunction struct {
	embedder Embedder
}

func (f chromaEmbeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	out := make([]embeddings.Embedding, 0, len(texts))
	for _, text := range texts {
		vec, err := f.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, embeddings.NewEmbeddingFromFloat32(vec))
	}
	return out, nil
}

func (f chromaEmbeddingFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	vec, err := embedQuery(ctx, f.embedder, text)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbeddingFromFloat32(vec), nil
}

func (c *ChromaIndex) Upsert(ctx context.Context, id string, vector []float32, meta VectorMetadata) error {
	model := meta.Model
	if model == "" {
		model = c.model
	}
	err := c.collection.Upsert(ctx,
		chromago.WithIDs(chromago.DocumentID(id)),
		chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithMetadatas(chromago.NewDocumentMetadata(
			chromago.NewStringAttribute(metaOwnerID, meta.OwnerID),
			chromago.NewStringAttribute(metaEmbeddingModel, model),
		)),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vector %s into chromadb: %w", id, err)
	}
	c.log.Debugf("CHROMA: Upserted vector for note %s", id)
	return nil
}

func (c *ChromaIndex) Query(ctx context.Context, vector []float32, topK int, ownerID string) ([]VectorMatch, error) {
	where := chromago.And(
		chromago.EqString(metaOwnerID, ownerID),
		chromago.EqString(metaEmbeddingModel, c.model),
	)
	results, err := c.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(topK),
		chromago.WithWhereQuery(where),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}
	var distances []float64
	if groups := results.GetDistancesGroups(); len(groups) > 0 {
		for _, d := range groups[0] {
			distances = append(distances, float64(d))
		}
	}

	matches := make([]VectorMatch, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		var distance float64
		if i < len(distances) {
			distance = distances[i]
		}
		matches = append(matches, VectorMatch{ID: string(id), Score: distanceToScore(distance)})
	}
	return matches, nil
}

func (c *ChromaIndex) Delete(ctx context.Context, id string) error {
	if err := c.collection.Delete(ctx, chromago.WithIDsDelete(chromago.DocumentID(id))); err != nil {
		return fmt.Errorf("failed to delete vector %s from chromadb: %w", id, err)
	}
	return nil
}

// distanceToScore maps a cosine distance onto a similarity score.
func distanceToScore(distance float64) float64 {
	return 1 - distance
}
