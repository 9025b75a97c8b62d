// Package kvstore is the desk's durable local persistence: a quota-capped
// key-value table on a single SQLite file. The budget mirrors the browser
// storage limits the record collections were originally sized against, so
// quota exhaustion stays a first-class, testable failure mode.
package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuotaExceeded reports that a write would push the store past its byte
// budget. Callers may retry with a smaller payload.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// DefaultQuotaBytes is the byte budget used when none is configured.
const DefaultQuotaBytes int64 = 10 << 20

type entryModel struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"type:text;not null;column:value"`
}

func (entryModel) TableName() string { return "kv_entries" }

// KV is a quota-capped durable key-value store on a local SQLite file.
type KV struct {
	db         *gorm.DB
	quotaBytes int64
}

// Open opens or creates the backing file and runs migrations.
// quotaBytes <= 0 selects the default budget.
func Open(path string, quotaBytes int64) (*KV, error) {
	if path == "" {
		return nil, fmt.Errorf("kvstore: path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&entryModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if quotaBytes <= 0 {
		quotaBytes = DefaultQuotaBytes
	}
	return &KV{db: db, quotaBytes: quotaBytes}, nil
}

// Get returns the stored value for key.
func (s *KV) Get(key string) (string, bool, error) {
	var model entryModel
	if err := s.db.First(&model, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return model.Value, true, nil
}

// Put stores value under key. The byte budget is enforced over all keys
// together, counting the row being replaced only at its new size.
func (s *KV) Put(key, value string) error {
	if key == "" {
		return fmt.Errorf("kvstore: key is required")
	}
	used, err := s.usageExcluding(key)
	if err != nil {
		return err
	}
	if used+int64(len(key))+int64(len(value)) > s.quotaBytes {
		return fmt.Errorf("put %s (%d new bytes, %d already used, budget %d): %w",
			key, len(key)+len(value), used, s.quotaBytes, ErrQuotaExceeded)
	}
	model := entryModel{Key: key, Value: value}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model).Error; err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (s *KV) Delete(key string) error {
	if err := s.db.Delete(&entryModel{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Usage returns the bytes currently counted against the budget.
func (s *KV) Usage() (int64, error) {
	return s.usageExcluding("")
}

func (s *KV) usageExcluding(key string) (int64, error) {
	var used int64
	err := s.db.Model(&entryModel{}).
		Where("key <> ?", key).
		Select("COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0)").
		Scan(&used).Error
	if err != nil {
		return 0, fmt.Errorf("compute usage: %w", err)
	}
	return used, nil
}
