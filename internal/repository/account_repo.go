package repository

import (
	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountRepository reads batches, accounts, entities and remote
// installations. Those records are managed elsewhere; this service only
// looks them up.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Expose DB if needed
func (r *AccountRepository) DB() *gorm.DB {
	return r.db
}

func (r *AccountRepository) GetBatch(id, userID uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	if err := r.db.First(&batch, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &batch, nil
}

func (r *AccountRepository) GetAccount(id, userID uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.db.First(&account, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (r *AccountRepository) GetEntity(id, userID uuid.UUID) (*models.Entity, error) {
	var entity models.Entity
	if err := r.db.First(&entity, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &entity, nil
}

// ActiveInstallations lists the active remote installations of an entity,
// oldest first.
func (r *AccountRepository) ActiveInstallations(entityID uuid.UUID) ([]models.RemoteInstallation, error) {
	var insts []models.RemoteInstallation
	err := r.db.
		Where("entity_id = ? AND active = ?", entityID, true).
		Order("created_at ASC").
		Find(&insts).Error
	return insts, err
}
