package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditActionAutoMatch    AuditAction = "auto_match"
	AuditActionClear        AuditAction = "clear_matches"
	AuditActionPush         AuditAction = "push"
	AuditActionPushTransfer AuditAction = "push_transfer"
	AuditActionReplicate    AuditAction = "replicate"
)

type MatchAuditLog struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BatchID       *uuid.UUID `gorm:"type:uuid;index"`
	TransactionID *uuid.UUID `gorm:"type:uuid;index"`
	Action        AuditAction
	RemoteID      string
	PerformedBy   uuid.UUID `gorm:"type:uuid"`
	Reason        string
	Details       datatypes.JSON
	CreatedAt     time.Time
}

// AllModels is the migration set.
func AllModels() []interface{} {
	return []interface{}{
		&Entity{},
		&Account{},
		&RemoteInstallation{},
		&ImportBatch{},
		&ImportedTransaction{},
		&MatchJob{},
		&OrphanTransaction{},
		&MatchAuditLog{},
	}
}
