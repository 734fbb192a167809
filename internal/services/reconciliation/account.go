package reconciliation

import (
	"context"
	"fmt"

	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountMatch struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	RemoteID      string            `json:"remote_id"`
	Number        string            `json:"number"`
	DayOffset     int               `json:"day_offset"`
	Confidence    models.Confidence `json:"confidence"`
	Amount        decimal.Decimal   `json:"amount"`
}

// AccountReconciliation is the result of a whole-account run. Orphans are
// reported only; they are stored per batch.
type AccountReconciliation struct {
	AccountID    uuid.UUID                  `json:"account_id"`
	FetchedCount int                        `json:"fetched_count"`
	PagesFetched int                        `json:"pages_fetched"`
	Truncated    bool                       `json:"truncated"`
	Considered   int                        `json:"considered"`
	Matches      []AccountMatch             `json:"matches"`
	Orphans      []models.RemoteTransaction `json:"orphans"`
}

// ReconcileAccount fetches every remote page for the account's imported date
// range in one call and matches all of the account's unmatched transactions.
func (s *ReconciliationService) ReconcileAccount(ctx context.Context, accountID, userID uuid.UUID) (*AccountReconciliation, error) {
	account, err := s.accountRepo.GetAccount(accountID, userID)
	if err != nil {
		return nil, err
	}
	elig, err := s.accountEligibility(account)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, &NotEligibleError{Reason: elig.Reason}
	}

	out := &AccountReconciliation{AccountID: accountID, Matches: []AccountMatch{}, Orphans: []models.RemoteTransaction{}}

	from, to, ok, err := s.transactionRepo.AccountDateRange(accountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return out, nil
	}

	var fetched []models.RemoteTransaction
	for n := 1; ; n++ {
		page, err := s.fetchPage(ctx, elig, from, to, n)
		if err != nil {
			return nil, err
		}
		fetched = append(fetched, page.Items...)
		out.PagesFetched = n
		if done, truncated := fetchDone(n, page, s.cfg.PageSize, s.cfg.PageCap); done {
			out.Truncated = truncated
			break
		}
	}
	out.FetchedCount = len(fetched)

	unmatched, err := s.transactionRepo.FindUnmatchedByAccount(accountID)
	if err != nil {
		return nil, err
	}
	claimed, err := s.transactionRepo.MatchedRemoteIDsByAccount(accountID)
	if err != nil {
		return nil, err
	}
	exclude := make(map[string]bool, len(claimed))
	for _, id := range claimed {
		exclude[id] = true
	}
	out.Considered = len(unmatched)

	result := matching.Match(unmatched, remotePool(fetched, exclude), account.Class, s.cfg.WindowDays)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		txRepo := s.transactionRepo.WithTx(tx)
		for _, m := range result.Matches {
			if err := txRepo.SetMatch(m.TransactionID, MatchFields(m)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save matches: %w", err)
	}

	for _, m := range result.Matches {
		out.Matches = append(out.Matches, AccountMatch{
			TransactionID: m.TransactionID,
			RemoteID:      m.Remote.RemoteID,
			Number:        m.Remote.Number,
			DayOffset:     m.DayOffset,
			Confidence:    m.Confidence,
			Amount:        m.DisplayAmount,
		})
	}
	out.Orphans = append(out.Orphans, matching.WithinRange(result.Unclaimed, from, to)...)

	s.log.Info().
		Str("account_id", accountID.String()).
		Int("fetched", out.FetchedCount).
		Int("matched", len(out.Matches)).
		Int("orphans", len(out.Orphans)).
		Bool("truncated", out.Truncated).
		Msg("account reconciled")
	return out, nil
}
