package models

import "time"

// Note is a user-owned titled text record. The record store is the source of
// truth; the vector index holds one embedding per note under the same ID.
type Note struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Title      string    `gorm:"not null" json:"title"`
	Content    string    `gorm:"not null;default:''" json:"content"`
	OwnerID    string    `gorm:"not null;index" json:"userId"`
	SourcePath string    `gorm:"index" json:"sourcePath,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName pins the table name used by both drivers.
func (Note) TableName() string {
	return "notes"
}

// EmbeddingText is the text whose embedding represents the note.
func (n Note) EmbeddingText() string {
	return n.Title + "\n\n" + n.Content
}
