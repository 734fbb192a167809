package repository

import (
	"encoding/json"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

// Record appends an audit entry. details is stored as JSON.
func (r *AuditRepository) Record(entry models.MatchAuditLog, details map[string]interface{}) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return err
		}
		entry.Details = datatypes.JSON(raw)
	}
	return r.db.Create(&entry).Error
}

func (r *AuditRepository) FindByTransaction(txID uuid.UUID) ([]models.MatchAuditLog, error) {
	var entries []models.MatchAuditLog
	err := r.db.Where("transaction_id = ?", txID).Order("created_at ASC").Find(&entries).Error
	return entries, err
}

func (r *AuditRepository) FindByBatch(batchID uuid.UUID) ([]models.MatchAuditLog, error) {
	var entries []models.MatchAuditLog
	err := r.db.Where("batch_id = ?", batchID).Order("created_at ASC").Find(&entries).Error
	return entries, err
}
