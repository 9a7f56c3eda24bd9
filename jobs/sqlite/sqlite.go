// Package sqlite provides a SQLite-backed JobStore for infergate using gorm.
//
// Job state survives restarts of a single instance. Terminal transitions are
// a conditional UPDATE on status, so a job can be finalized exactly once.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ineyio/infergate"
)

// Job is the persisted row of a JobRecord.
type Job struct {
	ID        string `gorm:"primaryKey;size:36"`
	Status    string `gorm:"size:16;not null;index"`
	Result    string
	Error     string
	UserID    string `gorm:"size:255;not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName sets the table name for Job.
func (Job) TableName() string { return "infergate_jobs" }

func (j Job) record() infergate.JobRecord {
	return infergate.JobRecord{
		ID:        j.ID,
		Status:    infergate.JobStatus(j.Status),
		Result:    j.Result,
		Error:     j.Error,
		UserID:    j.UserID,
		CreatedAt: j.CreatedAt.UTC(),
		UpdatedAt: j.UpdatedAt.UTC(),
	}
}

// Store is a gorm/SQLite-backed JobStore.
type Store struct {
	db *gorm.DB
}

var _ infergate.JobStore = (*Store)(nil)

// Open opens (creating if needed) the database at path, enables WAL and
// migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("infergate/sqlite: create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("infergate/sqlite: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("infergate/sqlite: get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("infergate/sqlite: set WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("infergate/sqlite: set busy timeout: %w", err)
	}

	if err := db.AutoMigrate(&Job{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("infergate/sqlite: auto-migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, rec infergate.JobRecord) error {
	row := Job{
		ID:        rec.ID,
		Status:    string(rec.Status),
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("infergate/sqlite: create job: %w", err)
	}
	return nil
}

// Get returns the record or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (infergate.JobRecord, error) {
	var row Job
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return infergate.JobRecord{}, infergate.ErrNotFound
	}
	if err != nil {
		return infergate.JobRecord{}, fmt.Errorf("infergate/sqlite: get job: %w", err)
	}
	return row.record(), nil
}

// Finish applies the terminal transition carried by rec.
func (s *Store) Finish(ctx context.Context, rec infergate.JobRecord) error {
	res := s.db.WithContext(ctx).
		Model(&Job{}).
		Where("id = ? AND status = ?", rec.ID, string(infergate.JobPending)).
		Updates(map[string]any{
			"status":     string(rec.Status),
			"result":     rec.Result,
			"error":      rec.Error,
			"updated_at": rec.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("infergate/sqlite: finish job: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// Nothing updated: either unknown or already terminal.
	if _, err := s.Get(ctx, rec.ID); err != nil {
		return err
	}
	return infergate.ErrJobFinalized
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
