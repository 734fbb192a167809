package repository

import (
	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrphanRepository struct {
	db *gorm.DB
}

func NewOrphanRepository(db *gorm.DB) *OrphanRepository {
	return &OrphanRepository{db: db}
}

func (r *OrphanRepository) WithTx(tx *gorm.DB) *OrphanRepository {
	return &OrphanRepository{db: tx}
}

// SaveSet replaces the orphans of a batch with orphans. Readers never see a
// half-written set.
func (r *OrphanRepository) SaveSet(batchID uuid.UUID, orphans []models.OrphanTransaction) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", batchID).Delete(&models.OrphanTransaction{}).Error; err != nil {
			return err
		}
		if len(orphans) == 0 {
			return nil
		}
		return tx.CreateInBatches(orphans, 100).Error
	})
}

func (r *OrphanRepository) FindByBatch(batchID uuid.UUID) ([]models.OrphanTransaction, error) {
	var orphans []models.OrphanTransaction
	err := r.db.
		Where("batch_id = ?", batchID).
		Order("date ASC, remote_id ASC").
		Find(&orphans).Error
	return orphans, err
}

func (r *OrphanRepository) DeleteByBatch(batchID uuid.UUID) error {
	return r.db.Where("batch_id = ?", batchID).Delete(&models.OrphanTransaction{}).Error
}

func (r *OrphanRepository) CountByBatch(batchID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.Model(&models.OrphanTransaction{}).Where("batch_id = ?", batchID).Count(&n).Error
	return n, err
}
