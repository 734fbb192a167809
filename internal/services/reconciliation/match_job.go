package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/repository"
	"ledger-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Progress is what a poller sees after each step.
type Progress struct {
	JobID        uuid.UUID             `json:"job_id"`
	BatchID      uuid.UUID             `json:"batch_id"`
	Status       models.MatchJobStatus `json:"status"`
	CurrentPage  int                   `json:"current_page"`
	TotalPages   *int                  `json:"total_pages"`
	FetchedCount int                   `json:"fetched_count"`
	MatchedCount int                   `json:"matched_count"`
	TotalCount   int                   `json:"total_count"`
	Truncated    bool                  `json:"truncated"`
	Message      string                `json:"message"`
	Error        string                `json:"error,omitempty"`
}

func newProgress(job *models.MatchJob) *Progress {
	p := &Progress{
		JobID:        job.ID,
		BatchID:      job.BatchID,
		Status:       job.Status,
		CurrentPage:  job.CurrentPage,
		TotalPages:   job.TotalPages,
		FetchedCount: len(job.RemoteTransactions),
		MatchedCount: job.MatchedCount,
		TotalCount:   job.TotalCount,
		Truncated:    job.Truncated,
		Error:        job.ErrorMessage,
	}
	p.Message = progressMessage(job)
	return p
}

func progressMessage(job *models.MatchJob) string {
	var msg string
	switch job.Status {
	case models.MatchJobPending:
		msg = "Waiting to fetch remote transactions"
	case models.MatchJobFetching:
		total := "?"
		if job.TotalPages != nil {
			total = fmt.Sprint(*job.TotalPages)
		}
		msg = fmt.Sprintf("Fetched page %d of %s (%d remote transactions)", job.CurrentPage, total, len(job.RemoteTransactions))
	case models.MatchJobMatching:
		msg = fmt.Sprintf("Fetched %d remote transactions, ready to match", len(job.RemoteTransactions))
	case models.MatchJobComplete:
		msg = fmt.Sprintf("Matched %d of %d transactions", job.MatchedCount, job.TotalCount)
	case models.MatchJobError:
		return "Matching failed: " + job.ErrorMessage
	}
	if job.Truncated && job.Status != models.MatchJobPending {
		msg += fmt.Sprintf("; remote fetch stopped at the %d page limit", job.CurrentPage)
	}
	return msg
}

// AdvanceMatchJob moves the batch's match job forward by one step and
// returns the resulting progress. Step failures are recorded on the job and
// do not surface as errors; only lookup, eligibility and storage failures do.
func (s *ReconciliationService) AdvanceMatchJob(ctx context.Context, batchID, userID uuid.UUID) (*Progress, error) {
	elig, err := s.CanMatch(batchID, userID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, &NotEligibleError{Reason: elig.Reason}
	}

	job, err := s.jobRepo.FindOrCreate(batchID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match job: %w", err)
	}

	unlock := s.lockJob(job.ID)
	defer unlock()

	// another caller may have advanced it while we waited
	if job, err = s.jobRepo.Get(batchID, userID); err != nil {
		return nil, fmt.Errorf("failed to reload match job: %w", err)
	}
	if job.Terminal() {
		return newProgress(job), nil
	}

	log := s.log.With().
		Str("batch_id", batchID.String()).
		Str("job_id", job.ID.String()).
		Str("from_status", string(job.Status)).
		Logger()

	if stepErr := s.runStep(ctx, job, elig); stepErr != nil {
		log.Warn().Err(stepErr).Msg("match job step failed")

		// reload so a half-applied step does not leak into the saved row
		if fresh, err := s.jobRepo.Get(batchID, userID); err == nil {
			job = fresh
		}
		job.Status = models.MatchJobError
		job.ErrorMessage = stepErr.Error()
		job.RemoteTransactions = nil
		if err := s.jobRepo.Save(job); err != nil {
			return nil, fmt.Errorf("failed to record match job error: %w", err)
		}
		return newProgress(job), nil
	}

	log.Info().
		Str("status", string(job.Status)).
		Int("page", job.CurrentPage).
		Int("fetched", len(job.RemoteTransactions)).
		Msg("match job advanced")
	return newProgress(job), nil
}

func (s *ReconciliationService) runStep(ctx context.Context, job *models.MatchJob, elig *Eligibility) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	switch job.Status {
	case models.MatchJobPending:
		return s.startFetch(ctx, job, elig)
	case models.MatchJobFetching:
		return s.fetchNextPage(ctx, job, elig)
	case models.MatchJobMatching:
		return s.matchBatch(job, elig)
	default:
		return fmt.Errorf("unknown match job status %q", job.Status)
	}
}

func (s *ReconciliationService) startFetch(ctx context.Context, job *models.MatchJob, elig *Eligibility) error {
	txs, err := s.transactionRepo.FindByBatch(job.BatchID)
	if err != nil {
		return fmt.Errorf("failed to load imported transactions: %w", err)
	}
	job.TotalCount = len(txs)

	from, to, ok := matching.DateRange(txs)
	if !ok {
		job.Status = models.MatchJobComplete
		return s.jobRepo.Save(job)
	}

	page, err := s.fetchPage(ctx, elig, from, to, 1)
	if err != nil {
		return err
	}
	job.RemoteTransactions = page.Items
	if page.TotalPages > 0 {
		totalPages := page.TotalPages
		job.TotalPages = &totalPages
	}
	s.afterPage(job, 1, page)
	return s.jobRepo.Save(job)
}

func (s *ReconciliationService) fetchNextPage(ctx context.Context, job *models.MatchJob, elig *Eligibility) error {
	txs, err := s.transactionRepo.FindByBatch(job.BatchID)
	if err != nil {
		return fmt.Errorf("failed to load imported transactions: %w", err)
	}
	from, to, ok := matching.DateRange(txs)
	if !ok {
		return errors.New("batch has no imported transactions")
	}

	next := job.CurrentPage + 1
	page, err := s.fetchPage(ctx, elig, from, to, next)
	if err != nil {
		return err
	}
	job.RemoteTransactions = append(job.RemoteTransactions, page.Items...)
	if page.TotalPages > 0 {
		totalPages := page.TotalPages
		job.TotalPages = &totalPages
	}
	s.afterPage(job, next, page)
	return s.jobRepo.Save(job)
}

func (s *ReconciliationService) fetchPage(ctx context.Context, elig *Eligibility, from, to time.Time, page int) (*ledger.Page, error) {
	windowFrom, windowTo := matching.Window(from, to, s.cfg.WindowDays)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	client := s.ledgers.ForInstallation(elig.Installation)
	return client.ListTransactions(ctx, ledger.ListParams{
		AccountID: *elig.Account.RemoteAccountID,
		DateFrom:  windowFrom,
		DateTo:    windowTo,
		Page:      page,
		PageSize:  s.cfg.PageSize,
	})
}

// afterPage records that page number n was fetched and decides whether
// fetching is over.
func (s *ReconciliationService) afterPage(job *models.MatchJob, n int, page *ledger.Page) {
	job.CurrentPage = n
	done, truncated := fetchDone(n, page, s.cfg.PageSize, s.cfg.PageCap)
	if done {
		job.Status = models.MatchJobMatching
		job.Truncated = truncated
		return
	}
	job.Status = models.MatchJobFetching
}

// fetchDone stops at the last reported page, on a short page (page counts
// can be stale or missing) or at the page cap. Stopping at the cap with pages
// left is a truncation. A zero TotalPages means the ledger did not report one.
func fetchDone(n int, page *ledger.Page, pageSize, pageCap int) (done, truncated bool) {
	if (page.TotalPages > 0 && n >= page.TotalPages) || len(page.Items) < pageSize {
		return true, false
	}
	if n >= pageCap {
		return true, true
	}
	return false, false
}

// matchBatch runs the matcher over the accumulated rows and stores matches,
// orphans and the completed job in one transaction.
func (s *ReconciliationService) matchBatch(job *models.MatchJob, elig *Eligibility) error {
	var matched int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txRepo := s.transactionRepo.WithTx(tx)

		txs, err := txRepo.FindByBatch(job.BatchID)
		if err != nil {
			return fmt.Errorf("failed to load imported transactions: %w", err)
		}

		// Sibling batches of the account share padded windows; their claims
		// stay out of both the pool and the orphans.
		elsewhere, err := txRepo.MatchedRemoteIDsOutsideBatch(elig.Account.ID, job.BatchID)
		if err != nil {
			return fmt.Errorf("failed to load claimed remote ids: %w", err)
		}
		exclude := make(map[string]bool, len(elsewhere))
		for _, id := range elsewhere {
			exclude[id] = true
		}

		var candidates []models.ImportedTransaction
		for _, t := range txs {
			if t.Match.IsSet() && t.Match.Source != nil && *t.Match.Source == models.MatchSourcePush {
				exclude[*t.Match.RemoteID] = true
				continue
			}
			candidates = append(candidates, t)
		}
		pool := remotePool(job.RemoteTransactions, exclude)

		result := matching.Match(candidates, pool, elig.Account.Class, s.cfg.WindowDays)

		if err := txRepo.ClearAutoMatches(job.BatchID); err != nil {
			return fmt.Errorf("failed to clear previous matches: %w", err)
		}
		for _, m := range result.Matches {
			if err := txRepo.SetMatch(m.TransactionID, MatchFields(m)); err != nil {
				return fmt.Errorf("failed to save match: %w", err)
			}
		}

		var orphans []models.OrphanTransaction
		if from, to, ok := matching.DateRange(txs); ok {
			for _, rt := range matching.WithinRange(result.Unclaimed, from, to) {
				orphans = append(orphans, models.NewOrphan(job.BatchID, rt))
			}
		}
		if err := s.orphanRepo.WithTx(tx).SaveSet(job.BatchID, orphans); err != nil {
			return fmt.Errorf("failed to save orphans: %w", err)
		}

		matched = len(result.Matches)
		job.Status = models.MatchJobComplete
		job.MatchedCount = matched
		job.TotalCount = len(txs)
		return s.jobRepo.WithTx(tx).Save(job)
	})
	if err != nil {
		return err
	}

	batchID := job.BatchID
	s.recordAudit(models.MatchAuditLog{
		BatchID:     &batchID,
		Action:      models.AuditActionAutoMatch,
		PerformedBy: job.UserID,
	}, map[string]interface{}{
		"matched":   matched,
		"total":     job.TotalCount,
		"fetched":   len(job.RemoteTransactions),
		"truncated": job.Truncated,
	})
	return nil
}

// remotePool drops rows claimed elsewhere and duplicate ids that appear when
// pages shift between requests.
func remotePool(rows []models.RemoteTransaction, exclude map[string]bool) []models.RemoteTransaction {
	seen := make(map[string]bool, len(rows))
	pool := make([]models.RemoteTransaction, 0, len(rows))
	for _, rt := range rows {
		if exclude[rt.RemoteID] || seen[rt.RemoteID] {
			continue
		}
		seen[rt.RemoteID] = true
		pool = append(pool, rt)
	}
	return pool
}

// MatchFields converts a matcher result into the stored match slot.
func MatchFields(m matching.Pair) models.MatchFields {
	remoteID := m.Remote.RemoteID
	number := m.Remote.Number
	date := m.Remote.Date
	confidence := m.Confidence
	source := models.MatchSourceAuto
	return models.MatchFields{
		RemoteID:    &remoteID,
		Number:      &number,
		Date:        &date,
		Amount:      decimal.NewNullDecimal(m.DisplayAmount),
		Description: optional(m.Remote.Description),
		Contact:     optional(m.Remote.Contact),
		Category:    optional(m.Remote.Category),
		Confidence:  &confidence,
		Source:      &source,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetProgress returns the batch's job progress without advancing it. A batch
// that was never advanced reports a pending job.
func (s *ReconciliationService) GetProgress(batchID, userID uuid.UUID) (*Progress, error) {
	if _, err := s.accountRepo.GetBatch(batchID, userID); err != nil {
		return nil, err
	}
	job, err := s.jobRepo.Get(batchID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return newProgress(&models.MatchJob{BatchID: batchID, UserID: userID, Status: models.MatchJobPending}), nil
	}
	if err != nil {
		return nil, err
	}
	return newProgress(job), nil
}

// ResetMatchJob puts the job back to pending. The next advance starts over
// from page 1.
func (s *ReconciliationService) ResetMatchJob(batchID, userID uuid.UUID) (*Progress, error) {
	if _, err := s.accountRepo.GetBatch(batchID, userID); err != nil {
		return nil, err
	}
	job, err := s.jobRepo.FindOrCreate(batchID, userID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockJob(job.ID)
	defer unlock()

	if job, err = s.jobRepo.Get(batchID, userID); err != nil {
		return nil, err
	}
	job.Reset()
	if err := s.jobRepo.Save(job); err != nil {
		return nil, fmt.Errorf("failed to reset match job: %w", err)
	}
	s.log.Info().Str("batch_id", batchID.String()).Msg("match job reset")
	return newProgress(job), nil
}

func (s *ReconciliationService) recordAudit(entry models.MatchAuditLog, details map[string]interface{}) {
	if err := s.auditRepo.Record(entry, details); err != nil {
		s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to write audit log")
	}
}
