package models

import (
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

type ImportBatch struct {
	ID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID   `gorm:"type:uuid;index" json:"user_id"`
	AccountID         uuid.UUID   `gorm:"type:uuid;index" json:"account_id"`
	Filename          string      `json:"filename"`
	TotalTransactions int         `json:"total_transactions"`
	ProcessedCount    int         `json:"processed_count"`
	Status            BatchStatus `gorm:"index" json:"status"`
	StartedAt         time.Time   `json:"started_at"`
	CompletedAt       *time.Time  `json:"completed_at"`
	CreatedAt         time.Time   `json:"created_at"`
}
