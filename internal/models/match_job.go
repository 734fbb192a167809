package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MatchJobStatus string

const (
	MatchJobPending  MatchJobStatus = "pending"
	MatchJobFetching MatchJobStatus = "fetching"
	MatchJobMatching MatchJobStatus = "matching"
	MatchJobComplete MatchJobStatus = "complete"
	MatchJobError    MatchJobStatus = "error"
)

// MatchJob tracks fetch and match progress for one (batch, user) pair.
type MatchJob struct {
	ID                 uuid.UUID                           `gorm:"type:uuid;primaryKey"`
	BatchID            uuid.UUID                           `gorm:"type:uuid;uniqueIndex:idx_match_jobs_batch_user"`
	UserID             uuid.UUID                           `gorm:"type:uuid;uniqueIndex:idx_match_jobs_batch_user"`
	Status             MatchJobStatus                      `gorm:"index"`
	CurrentPage        int
	TotalPages         *int
	RemoteTransactions datatypes.JSONSlice[RemoteTransaction]
	MatchedCount       int
	TotalCount         int
	Truncated          bool
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (j *MatchJob) Terminal() bool {
	return j.Status == MatchJobComplete || j.Status == MatchJobError
}

// Reset puts the job back to its initial pending state.
func (j *MatchJob) Reset() {
	j.Status = MatchJobPending
	j.CurrentPage = 0
	j.TotalPages = nil
	j.RemoteTransactions = nil
	j.MatchedCount = 0
	j.TotalCount = 0
	j.Truncated = false
	j.ErrorMessage = ""
}
