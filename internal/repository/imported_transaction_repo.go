package repository

import (
	"errors"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

type ImportedTransactionRepository struct {
	db *gorm.DB
}

func NewImportedTransactionRepository(db *gorm.DB) *ImportedTransactionRepository {
	return &ImportedTransactionRepository{db: db}
}

// WithTx returns a copy bound to tx.
func (r *ImportedTransactionRepository) WithTx(tx *gorm.DB) *ImportedTransactionRepository {
	return &ImportedTransactionRepository{db: tx}
}

func (r *ImportedTransactionRepository) GetByID(id uuid.UUID) (*models.ImportedTransaction, error) {
	var tx models.ImportedTransaction
	if err := r.db.First(&tx, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tx, nil
}

// FindByBatch returns every transaction of a batch in (date, id) order.
func (r *ImportedTransactionRepository) FindByBatch(batchID uuid.UUID) ([]models.ImportedTransaction, error) {
	var txs []models.ImportedTransaction
	err := r.db.
		Where("batch_id = ?", batchID).
		Order("transaction_date ASC, id ASC").
		Find(&txs).Error
	return txs, err
}

func (r *ImportedTransactionRepository) FindByAccountDateRange(accountID uuid.UUID, from, to time.Time) ([]models.ImportedTransaction, error) {
	var txs []models.ImportedTransaction
	err := r.db.
		Where("account_id = ? AND transaction_date >= ? AND transaction_date < ?", accountID, from, to.AddDate(0, 0, 1)).
		Order("transaction_date ASC, id ASC").
		Find(&txs).Error
	return txs, err
}

func (r *ImportedTransactionRepository) FindUnmatchedByAccount(accountID uuid.UUID) ([]models.ImportedTransaction, error) {
	var txs []models.ImportedTransaction
	err := r.db.
		Where("account_id = ? AND matched_remote_id IS NULL", accountID).
		Order("transaction_date ASC, id ASC").
		Find(&txs).Error
	return txs, err
}

// MatchedRemoteIDsByAccount lists remote ids already held in any match slot
// of the account.
func (r *ImportedTransactionRepository) MatchedRemoteIDsByAccount(accountID uuid.UUID) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.ImportedTransaction{}).
		Where("account_id = ? AND matched_remote_id IS NOT NULL", accountID).
		Pluck("matched_remote_id", &ids).Error
	return ids, err
}

// MatchedRemoteIDsOutsideBatch lists remote ids held by match slots in the
// account's other batches.
func (r *ImportedTransactionRepository) MatchedRemoteIDsOutsideBatch(accountID, batchID uuid.UUID) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.ImportedTransaction{}).
		Where("account_id = ? AND batch_id <> ? AND matched_remote_id IS NOT NULL", accountID, batchID).
		Pluck("matched_remote_id", &ids).Error
	return ids, err
}

// AccountDateRange returns the earliest and latest transaction dates of an
// account. ok is false when the account has no transactions.
func (r *ImportedTransactionRepository) AccountDateRange(accountID uuid.UUID) (from, to time.Time, ok bool, err error) {
	var first, last models.ImportedTransaction
	err = r.db.Where("account_id = ?", accountID).Order("transaction_date ASC").First(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return from, to, false, nil
	}
	if err != nil {
		return from, to, false, err
	}
	if err = r.db.Where("account_id = ?", accountID).Order("transaction_date DESC").First(&last).Error; err != nil {
		return from, to, false, err
	}
	return first.TransactionDate, last.TransactionDate, true, nil
}

// SetMatch writes the match slot and marks the transaction processed.
func (r *ImportedTransactionRepository) SetMatch(id uuid.UUID, m models.MatchFields) error {
	updates := matchUpdates(m)
	updates["status"] = models.TransactionStatusProcessed
	return r.db.Model(&models.ImportedTransaction{}).Where("id = ?", id).Updates(updates).Error
}

// ClearAutoMatches empties match slots written by the matcher. Pushed
// transactions keep theirs.
func (r *ImportedTransactionRepository) ClearAutoMatches(batchID uuid.UUID) error {
	return r.db.Model(&models.ImportedTransaction{}).
		Where("batch_id = ? AND matched_source = ?", batchID, models.MatchSourceAuto).
		Updates(clearedMatch()).Error
}

// ClearMatches empties every match slot of a batch and returns the number of
// rows touched.
func (r *ImportedTransactionRepository) ClearMatches(batchID uuid.UUID) (int64, error) {
	res := r.db.Model(&models.ImportedTransaction{}).
		Where("batch_id = ? AND matched_remote_id IS NOT NULL", batchID).
		Updates(clearedMatch())
	return res.RowsAffected, res.Error
}

// SetPushResult records a transaction created remotely from this one.
func (r *ImportedTransactionRepository) SetPushResult(id uuid.UUID, m models.MatchFields) error {
	source := models.MatchSourcePush
	high := models.ConfidenceHigh
	m.Source = &source
	m.Confidence = &high
	return r.SetMatch(id, m)
}

func (r *ImportedTransactionRepository) SetReplication(id uuid.UUID, rep models.ReplicationFields) error {
	return r.db.Model(&models.ImportedTransaction{}).Where("id = ?", id).Updates(map[string]interface{}{
		"replicated_remote_id": rep.RemoteID,
		"replicated_number":    rep.Number,
		"replicated_entity_id": rep.EntityID,
		"replicated_at":        rep.At,
	}).Error
}

func (r *ImportedTransactionRepository) MarkError(id uuid.UUID) error {
	return r.db.Model(&models.ImportedTransaction{}).Where("id = ?", id).
		Update("status", models.TransactionStatusError).Error
}

type StatRow struct {
	Confidence *string
	Count      int64
	Sum        decimal.Decimal
}

// StatsByConfidence groups a batch by match confidence. Unmatched rows come
// back with a nil confidence.
func (r *ImportedTransactionRepository) StatsByConfidence(batchID uuid.UUID) ([]StatRow, error) {
	var rows []StatRow
	err := r.db.Model(&models.ImportedTransaction{}).
		Where("batch_id = ?", batchID).
		Select("matched_confidence as confidence, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("matched_confidence").
		Scan(&rows).Error
	return rows, err
}

func (r *ImportedTransactionRepository) CountReplicated(batchID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.Model(&models.ImportedTransaction{}).
		Where("batch_id = ? AND replicated_remote_id IS NOT NULL", batchID).
		Count(&n).Error
	return n, err
}

func matchUpdates(m models.MatchFields) map[string]interface{} {
	return map[string]interface{}{
		"matched_remote_id":   m.RemoteID,
		"matched_number":      m.Number,
		"matched_date":        m.Date,
		"matched_amount":      m.Amount,
		"matched_description": m.Description,
		"matched_contact":     m.Contact,
		"matched_category":    m.Category,
		"matched_confidence":  m.Confidence,
		"matched_source":      m.Source,
	}
}

func clearedMatch() map[string]interface{} {
	updates := make(map[string]interface{}, len(models.MatchColumns)+1)
	for _, col := range models.MatchColumns {
		updates[col] = nil
	}
	updates["status"] = models.TransactionStatusPending
	return updates
}
