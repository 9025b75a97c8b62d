// Package store keeps the relay's receipt rows: one row per contract copy
// accepted over the wire, without the document payload itself.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signdesk/pkg/domain"
)

// ReceiptModel is the GORM model backing receipts.
type ReceiptModel struct {
	ID           string `gorm:"primaryKey"`
	TemplateName string `gorm:"not null"`
	SignerName   string `gorm:"not null"`
	SignerEmail  string
	FileKey      string    `gorm:"not null"`
	FileURL      string    `gorm:"not null"`
	EmailStatus  string    `gorm:"not null"`
	ReceivedAt   time.Time `gorm:"not null;index"`
}

func (ReceiptModel) TableName() string { return "receipts" }

// GormStore implements receipt persistence using GORM + SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB file and runs auto-migrations.
func NewGormStore(path string) (*GormStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: path is required")
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
	if err := db.AutoMigrate(&ReceiptModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveReceipt inserts or updates a receipt row.
func (s *GormStore) SaveReceipt(r domain.Receipt) error {
	model := receiptToModel(r)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_key", "file_url", "email_status"}),
	}).Create(&model).Error
}

// ListReceipts returns the most recent receipts, newest first. limit <= 0
// returns everything.
func (s *GormStore) ListReceipts(limit int) ([]domain.Receipt, error) {
	var models []ReceiptModel
	tx := s.db.Order("received_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Receipt, 0, len(models))
	for _, m := range models {
		res = append(res, receiptFromModel(m))
	}
	return res, nil
}

// GetReceipt retrieves a receipt by ID.
func (s *GormStore) GetReceipt(id string) (domain.Receipt, bool, error) {
	var model ReceiptModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Receipt{}, false, nil
		}
		return domain.Receipt{}, false, err
	}
	return receiptFromModel(model), true, nil
}

// SetEmailStatus updates the email outcome of one receipt.
func (s *GormStore) SetEmailStatus(id string, status domain.EmailStatus) error {
	return s.db.Model(&ReceiptModel{}).
		Where("id = ?", id).
		Update("email_status", string(status)).Error
}

func receiptToModel(r domain.Receipt) ReceiptModel {
	return ReceiptModel{
		ID:           r.ID,
		TemplateName: r.TemplateName,
		SignerName:   r.SignerName,
		SignerEmail:  r.SignerEmail,
		FileKey:      r.FileKey,
		FileURL:      r.FileURL,
		EmailStatus:  string(r.EmailStatus),
		ReceivedAt:   r.ReceivedAt,
	}
}

func receiptFromModel(m ReceiptModel) domain.Receipt {
	return domain.Receipt{
		ID:           m.ID,
		TemplateName: m.TemplateName,
		SignerName:   m.SignerName,
		SignerEmail:  m.SignerEmail,
		FileKey:      m.FileKey,
		FileURL:      m.FileURL,
		EmailStatus:  domain.EmailStatus(m.EmailStatus),
		ReceivedAt:   m.ReceivedAt,
	}
}
