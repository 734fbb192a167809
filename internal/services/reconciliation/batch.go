package reconciliation

import (
	"fmt"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ClearMatches empties every match slot of the batch, drops its orphans and
// its match jobs. Returns the number of transactions cleared.
func (s *ReconciliationService) ClearMatches(batchID, userID uuid.UUID) (int64, error) {
	if _, err := s.accountRepo.GetBatch(batchID, userID); err != nil {
		return 0, err
	}

	var cleared int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		n, err := s.transactionRepo.WithTx(tx).ClearMatches(batchID)
		if err != nil {
			return err
		}
		cleared = n
		if err := s.orphanRepo.WithTx(tx).DeleteByBatch(batchID); err != nil {
			return err
		}
		return s.jobRepo.WithTx(tx).DeleteByBatch(batchID)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clear matches: %w", err)
	}

	s.recordAudit(models.MatchAuditLog{
		BatchID:     &batchID,
		Action:      models.AuditActionClear,
		PerformedBy: userID,
	}, map[string]interface{}{"cleared": cleared})
	s.log.Info().Str("batch_id", batchID.String()).Int64("cleared", cleared).Msg("matches cleared")
	return cleared, nil
}

type TierStats struct {
	Count int64           `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

type BatchStats struct {
	Total       int64           `json:"total"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	High      TierStats `json:"high"`
	Medium    TierStats `json:"medium"`
	Low       TierStats `json:"low"`
	Unmatched TierStats `json:"unmatched"`

	MatchedCount    int64 `json:"matched_count"`
	OrphanCount     int64 `json:"orphan_count"`
	ReplicatedCount int64 `json:"replicated_count"`
}

func (s *ReconciliationService) GetBatchStats(batchID, userID uuid.UUID) (BatchStats, error) {
	var stats BatchStats
	if _, err := s.accountRepo.GetBatch(batchID, userID); err != nil {
		return stats, err
	}

	rows, err := s.transactionRepo.StatsByConfidence(batchID)
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalAmount = stats.TotalAmount.Add(r.Sum)

		tier := TierStats{Count: r.Count, Sum: r.Sum}
		if r.Confidence == nil {
			stats.Unmatched = tier
			continue
		}
		stats.MatchedCount += r.Count
		switch models.Confidence(*r.Confidence) {
		case models.ConfidenceHigh:
			stats.High = tier
		case models.ConfidenceMedium:
			stats.Medium = tier
		case models.ConfidenceLow:
			stats.Low = tier
		}
	}

	if stats.OrphanCount, err = s.orphanRepo.CountByBatch(batchID); err != nil {
		return stats, err
	}
	if stats.ReplicatedCount, err = s.transactionRepo.CountReplicated(batchID); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *ReconciliationService) ListOrphans(batchID, userID uuid.UUID) ([]models.OrphanTransaction, error) {
	if _, err := s.accountRepo.GetBatch(batchID, userID); err != nil {
		return nil, err
	}
	return s.orphanRepo.FindByBatch(batchID)
}
