package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusProcessed TransactionStatus = "processed"
	TransactionStatusError     TransactionStatus = "error"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// MatchSource tells automatic matches apart from pushed transactions, which
// share the same match slot.
type MatchSource string

const (
	MatchSourceAuto MatchSource = "auto"
	MatchSourcePush MatchSource = "push"
)

type ImportedTransaction struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID         uuid.UUID         `gorm:"type:uuid;index" json:"batch_id"`
	AccountID       uuid.UUID         `gorm:"type:uuid;index" json:"account_id"`
	TransactionDate time.Time         `gorm:"column:transaction_date;index" json:"transaction_date"`
	Currency        string            `gorm:"type:varchar(3)" json:"currency"`
	Amount          decimal.Decimal   `gorm:"type:numeric(18,2)" json:"amount"`
	Description     string            `json:"description"`
	ReferenceNumber string            `json:"reference_number"`
	Status          TransactionStatus `gorm:"index" json:"status"`
	Match           MatchFields       `gorm:"embedded;embeddedPrefix:matched_" json:"match"`
	Replication     ReplicationFields `gorm:"embedded;embeddedPrefix:replicated_" json:"replication"`
	CreatedAt       time.Time         `json:"created_at"`
}

// MatchFields is the slot written by the matcher and by pushes. Either all
// fields are set or none are.
type MatchFields struct {
	RemoteID    *string             `gorm:"index" json:"remote_id"`
	Number      *string             `json:"number"`
	Date        *time.Time          `json:"date"`
	Amount      decimal.NullDecimal `gorm:"type:numeric(18,2)" json:"amount"`
	Description *string             `json:"description"`
	Contact     *string             `json:"contact"`
	Category    *string             `json:"category"`
	Confidence  *Confidence         `json:"confidence"`
	Source      *MatchSource        `json:"source"`
}

func (m MatchFields) IsSet() bool {
	return m.RemoteID != nil
}

type ReplicationFields struct {
	RemoteID *string    `json:"remote_id"`
	Number   *string    `json:"number"`
	EntityID *uuid.UUID `gorm:"type:uuid" json:"entity_id"`
	At       *time.Time `json:"at"`
}

// MatchColumns lists the columns of the match slot, used to clear it.
var MatchColumns = []string{
	"matched_remote_id",
	"matched_number",
	"matched_date",
	"matched_amount",
	"matched_description",
	"matched_contact",
	"matched_category",
	"matched_confidence",
	"matched_source",
}
