package repository

import (
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MatchJobRepository struct {
	db *gorm.DB
}

func NewMatchJobRepository(db *gorm.DB) *MatchJobRepository {
	return &MatchJobRepository{db: db}
}

func (r *MatchJobRepository) WithTx(tx *gorm.DB) *MatchJobRepository {
	return &MatchJobRepository{db: tx}
}

// FindOrCreate returns the job of (batch, user), inserting a pending one if
// none exists. Concurrent callers all end up with the same row.
func (r *MatchJobRepository) FindOrCreate(batchID, userID uuid.UUID) (*models.MatchJob, error) {
	now := time.Now()
	job := &models.MatchJob{
		ID:        uuid.New(),
		BatchID:   batchID,
		UserID:    userID,
		Status:    models.MatchJobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "batch_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(job).Error
	if err != nil {
		return nil, err
	}
	return r.Get(batchID, userID)
}

func (r *MatchJobRepository) Get(batchID, userID uuid.UUID) (*models.MatchJob, error) {
	var job models.MatchJob
	if err := r.db.First(&job, "batch_id = ? AND user_id = ?", batchID, userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &job, nil
}

func (r *MatchJobRepository) Save(job *models.MatchJob) error {
	job.UpdatedAt = time.Now()
	return r.db.Save(job).Error
}

// DeleteByBatch drops the jobs of every user for a batch.
func (r *MatchJobRepository) DeleteByBatch(batchID uuid.UUID) error {
	return r.db.Where("batch_id = ?", batchID).Delete(&models.MatchJob{}).Error
}
