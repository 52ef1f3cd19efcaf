package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github/itish2003/ainotes/models"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// NoteStore is the record store holding the authoritative copy of every note.
type NoteStore interface {
	GetNote(ctx context.Context, id string) (*models.Note, error)
	// GetNotesByIDs returns the notes that exist, in no particular order.
	GetNotesByIDs(ctx context.Context, ids []string) ([]models.Note, error)
	ListNotes(ctx context.Context, ownerID string) ([]models.Note, error)
	FindBySourcePath(ctx context.Context, ownerID, path string) (*models.Note, error)
	// WithinTransaction commits when fn returns nil and rolls back otherwise.
	WithinTransaction(ctx context.Context, fn func(tx NoteTx) error) error
}

// NoteTx is the set of writes available inside a transaction.
type NoteTx interface {
	// LockNote reads a note and holds a row lock until the transaction ends.
	LockNote(ctx context.Context, id string) (*models.Note, error)
	CreateNote(ctx context.Context, note *models.Note) error
	SaveNote(ctx context.Context, note *models.Note) error
	DeleteNote(ctx context.Context, id string) error
}

// OpenDatabase opens a gorm connection for the given driver.
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(
			logrus.StandardLogger(),
			logger.Config{
				SlowThreshold:             500 * time.Millisecond,
				LogLevel:                  gormLogLevel(),
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows a single writer; one connection serializes transactions.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func gormLogLevel() logger.LogLevel {
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		return logger.Info
	}
	return logger.Warn
}

// GormNoteStore implements NoteStore on gorm.
type GormNoteStore struct {
	db *gorm.DB
}

func NewGormNoteStore(db *gorm.DB) *GormNoteStore {
	return &GormNoteStore{db: db}
}

// Migrate creates or updates the notes table.
func (s *GormNoteStore) Migrate() error {
	if err := s.db.AutoMigrate(&models.Note{}); err != nil {
		return fmt.Errorf("failed to migrate notes table: %w", err)
	}
	return nil
}

func (s *GormNoteStore) GetNote(ctx context.Context, id string) (*models.Note, error) {
	var note models.Note
	if err := s.db.WithContext(ctx).First(&note, "id = ?", id).Error; err != nil {
		return nil, storeError(err)
	}
	return &note, nil
}

func (s *GormNoteStore) GetNotesByIDs(ctx context.Context, ids []string) ([]models.Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var notes []models.Note
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&notes).Error; err != nil {
		return nil, storeError(err)
	}
	return notes, nil
}

func (s *GormNoteStore) ListNotes(ctx context.Context, ownerID string) ([]models.Note, error) {
	var notes []models.Note
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&notes).Error
	if err != nil {
		return nil, storeError(err)
	}
	return notes, nil
}

func (s *GormNoteStore) FindBySourcePath(ctx context.Context, ownerID, path string) (*models.Note, error) {
	var note models.Note
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND source_path = ?", ownerID, path).
		First(&note).Error
	if err != nil {
		return nil, storeError(err)
	}
	return &note, nil
}

func (s *GormNoteStore) WithinTransaction(ctx context.Context, fn func(tx NoteTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormNoteTx{tx: tx})
	})
}

type gormNoteTx struct {
	tx *gorm.DB
}

func (t *gormNoteTx) LockNote(ctx context.Context, id string) (*models.Note, error) {
	var note models.Note
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&note, "id = ?", id).Error
	if err != nil {
		return nil, storeError(err)
	}
	return &note, nil
}

func (t *gormNoteTx) CreateNote(ctx context.Context, note *models.Note) error {
	if err := t.tx.WithContext(ctx).Create(note).Error; err != nil {
		return storeError(err)
	}
	return nil
}

func (t *gormNoteTx) SaveNote(ctx context.Context, note *models.Note) error {
	if err := t.tx.WithContext(ctx).Save(note).Error; err != nil {
		return storeError(err)
	}
	return nil
}

func (t *gormNoteTx) DeleteNote(ctx context.Context, id string) error {
	res := t.tx.WithContext(ctx).Delete(&models.Note{}, "id = ?", id)
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func storeError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return wrap(ErrInternal, err)
}
