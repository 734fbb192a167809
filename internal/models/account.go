package models

import (
	"time"

	"github.com/google/uuid"
)

type AccountClass string

const (
	AccountClassBank       AccountClass = "bank"
	AccountClassCreditCard AccountClass = "credit_card"
)

type Entity struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Name         string    `json:"name"`
	BaseCurrency string    `gorm:"type:varchar(3)" json:"base_currency"`
	CreatedAt    time.Time `json:"created_at"`
}

type Account struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	EntityID        uuid.UUID    `gorm:"type:uuid;index" json:"entity_id"`
	UserID          uuid.UUID    `gorm:"type:uuid;index" json:"user_id"`
	Name            string       `json:"name"`
	Class           AccountClass `gorm:"type:varchar(16)" json:"class"`
	Currency        string       `gorm:"type:varchar(3)" json:"currency"`
	RemoteAccountID *string      `json:"remote_account_id"`
	CreatedAt       time.Time    `json:"created_at"`
}

// RemoteInstallation holds the connection details of one remote ledger
// instance. An entity is expected to have exactly one active installation.
type RemoteInstallation struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EntityID     uuid.UUID `gorm:"type:uuid;index" json:"entity_id"`
	Name         string    `json:"name"`
	BaseURL      string    `json:"base_url"`
	CompanyID    string    `json:"company_id"`
	AccessToken  string    `json:"-"`
	BaseCurrency string    `gorm:"type:varchar(3)" json:"base_currency"`
	Active       bool      `gorm:"index" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}
