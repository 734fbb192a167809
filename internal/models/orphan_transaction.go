package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrphanTransaction struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID     uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_orphans_batch_remote" json:"batch_id"`
	RemoteID    string          `gorm:"uniqueIndex:idx_orphans_batch_remote" json:"remote_id"`
	Number      string          `json:"number"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount"`
	Type        RemoteType      `json:"type"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	Contact     string          `json:"contact"`
	Category    string          `json:"category"`
	Currency    string          `gorm:"type:varchar(3)" json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
}

func NewOrphan(batchID uuid.UUID, rt RemoteTransaction) OrphanTransaction {
	return OrphanTransaction{
		ID:          uuid.New(),
		BatchID:     batchID,
		RemoteID:    rt.RemoteID,
		Number:      rt.Number,
		Date:        rt.Date,
		Amount:      rt.Amount,
		Type:        rt.Type,
		Description: rt.Description,
		Reference:   rt.Reference,
		Contact:     rt.Contact,
		Category:    rt.Category,
		Currency:    rt.Currency,
		CreatedAt:   time.Now(),
	}
}
