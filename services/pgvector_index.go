package services

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NoteVector is a row of the note_vectors table.
type NoteVector struct {
	ID        string          `gorm:"primaryKey"`
	OwnerID   string          `gorm:"not null;index"`
	Model     string          `gorm:"not null"`
	Embedding pgvector.Vector `gorm:"type:vector"`
}

func (NoteVector) TableName() string {
	return "note_vectors"
}

// PGVectorIndex keeps note vectors in Postgres next to the notes table.
type PGVectorIndex struct {
	db        *gorm.DB
	model     string
	dimension int
}

func NewPGVectorIndex(db *gorm.DB, model string, dimension int) *PGVectorIndex {
	return &PGVectorIndex{db: db, model: model, dimension: dimension}
}

// Migrate installs the vector extension and creates note_vectors.
func (p *PGVectorIndex) Migrate(ctx context.Context) error {
	column := "vector"
	if p.dimension > 0 {
		column = fmt.Sprintf("vector(%d)", p.dimension)
	}
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS note_vectors (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			model TEXT NOT NULL,
			embedding %s
		)`, column),
		"CREATE INDEX IF NOT EXISTS idx_note_vectors_owner_id ON note_vectors (owner_id)",
	}
	for _, stmt := range stmts {
		if err := p.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("pgvector migrate: %w", err)
		}
	}
	return nil
}

func (p *PGVectorIndex) Upsert(ctx context.Context, id string, vector []float32, meta VectorMetadata) error {
	model := meta.Model
	if model == "" {
		model = p.model
	}
	row := NoteVector{
		ID:        id,
		OwnerID:   meta.OwnerID,
		Model:     model,
		Embedding: pgvector.NewVector(vector),
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "model", "embedding"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert vector %s: %w", id, err)
	}
	return nil
}

func (p *PGVectorIndex) Query(ctx context.Context, vector []float32, topK int, ownerID string) ([]VectorMatch, error) {
	q := pgvector.NewVector(vector)
	var rows []struct {
		ID       string
		Distance float64
	}
	err := p.db.WithContext(ctx).
		Model(&NoteVector{}).
		Select("id, embedding <=> ? AS distance", q).
		Where("owner_id = ? AND model = ?", ownerID, p.model).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{q}}).
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query note_vectors: %w", err)
	}
	matches := make([]VectorMatch, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, VectorMatch{ID: r.ID, Score: distanceToScore(r.Distance)})
	}
	return matches, nil
}

func (p *PGVectorIndex) Delete(ctx context.Context, id string) error {
	if err := p.db.WithContext(ctx).Delete(&NoteVector{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete vector %s: %w", id, err)
	}
	return nil
}
