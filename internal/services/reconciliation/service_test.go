package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ledger-reconciliation-backend/internal/config"
	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testConfig() config.MatchingConfig {
	return config.MatchingConfig{
		WindowDays: 5,
		PageSize:   2,
		PageCap:    20,
		Timeout:    time.Second,
	}
}

func newTestService(t *testing.T, fake *testutil.FakeLedger) (*ReconciliationService, *gorm.DB, testutil.Fixture) {
	t.Helper()
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	return NewReconciliationService(db, fake, testConfig(), logger.Nop()), db, f
}

func rt(id string, date time.Time, amount string, typ models.RemoteType) models.RemoteTransaction {
	return models.RemoteTransaction{
		RemoteID: id,
		Number:   "TRX-" + id,
		Date:     date,
		Amount:   decimal.RequireFromString(amount),
		Type:     typ,
		Currency: "USD",
	}
}

func advanceUntil(t *testing.T, svc *ReconciliationService, f testutil.Fixture, status models.MatchJobStatus, max int) *Progress {
	t.Helper()
	var p *Progress
	for i := 0; i < max; i++ {
		var err error
		p, err = svc.AdvanceMatchJob(context.Background(), f.Batch.ID, f.UserID)
		require.NoError(t, err)
		if p.Status == status {
			return p
		}
	}
	t.Fatalf("job did not reach %s after %d steps, last status %s", status, max, p.Status)
	return nil
}

func TestCanMatchReasons(t *testing.T) {
	svc, db, f := newTestService(t, &testutil.FakeLedger{})

	elig, err := svc.CanMatch(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.True(t, elig.Eligible)
	assert.Equal(t, f.Installation.ID, elig.Installation.ID)

	_, err = svc.CanMatch(f.Batch.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CanMatch(uuid.New(), f.UserID)
	assert.ErrorIs(t, err, ErrNotFound)

	second := f.Installation
	second.ID = uuid.New()
	second.Name = "second"
	require.NoError(t, db.Create(&second).Error)
	elig, err = svc.CanMatch(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
	assert.Equal(t, ReasonMultipleInstallations, elig.Reason)

	require.NoError(t, db.Model(&models.RemoteInstallation{}).Where("entity_id = ?", f.Entity.ID).Update("active", false).Error)
	elig, err = svc.CanMatch(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoInstallation, elig.Reason)

	require.NoError(t, db.Model(&f.Account).Update("remote_account_id", nil).Error)
	elig, err = svc.CanMatch(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, ReasonAccountNotLinked, elig.Reason)

	require.NoError(t, db.Model(&f.Batch).Update("status", models.BatchStatusProcessing).Error)
	elig, err = svc.CanMatch(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, ReasonBatchNotCompleted, elig.Reason)

	_, err = svc.AdvanceMatchJob(context.Background(), f.Batch.ID, f.UserID)
	var notEligible *NotEligibleError
	require.ErrorAs(t, err, &notEligible)
	assert.Equal(t, ReasonBatchNotCompleted, notEligible.Reason)
}

func TestAdvanceMatchJobFullRun(t *testing.T) {
	fake := &testutil.FakeLedger{
		Pages: [][]models.RemoteTransaction{
			{
				rt("r1", testutil.Date(2025, 3, 10), "45.00", models.RemoteTypeExpense),
				rt("pad", testutil.Date(2025, 3, 6), "99.00", models.RemoteTypeIncome),
			},
			{
				rt("r2", testutil.Date(2025, 3, 14), "100.00", models.RemoteTypeIncome),
				rt("orphan", testutil.Date(2025, 3, 11), "12.00", models.RemoteTypeIncome),
			},
		},
	}
	svc, db, f := newTestService(t, fake)
	coffee := f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "-45.00", "COFFEE")
	salary := f.AddTransaction(t, db, testutil.Date(2025, 3, 12), "100.00", "SALARY")

	ctx := context.Background()

	p, err := svc.GetProgress(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobPending, p.Status)

	p, err = svc.AdvanceMatchJob(ctx, f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobFetching, p.Status)
	assert.Equal(t, 1, p.CurrentPage)
	require.NotNil(t, p.TotalPages)
	assert.Equal(t, 2, *p.TotalPages)
	assert.Equal(t, 2, p.FetchedCount)
	assert.Equal(t, 2, p.TotalCount)

	require.Len(t, fake.ListCalls, 1)
	call := fake.ListCalls[0]
	assert.Equal(t, "42", call.AccountID)
	assert.Equal(t, testutil.Date(2025, 3, 5), call.DateFrom)
	assert.Equal(t, testutil.Date(2025, 3, 17), call.DateTo)
	assert.Equal(t, 1, call.Page)
	assert.Equal(t, 2, call.PageSize)

	p, err = svc.AdvanceMatchJob(ctx, f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobMatching, p.Status)
	assert.Equal(t, 4, p.FetchedCount)
	assert.False(t, p.Truncated)

	p, err = svc.AdvanceMatchJob(ctx, f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobComplete, p.Status)
	assert.Equal(t, 2, p.MatchedCount)
	assert.Equal(t, "Matched 2 of 2 transactions", p.Message)

	got, err := svc.transactionRepo.GetByID(coffee.ID)
	require.NoError(t, err)
	require.True(t, got.Match.IsSet())
	assert.Equal(t, "r1", *got.Match.RemoteID)
	assert.Equal(t, models.ConfidenceHigh, *got.Match.Confidence)
	assert.True(t, got.Match.Amount.Decimal.Equal(decimal.RequireFromString("-45.00")))
	assert.Equal(t, models.TransactionStatusProcessed, got.Status)

	got, err = svc.transactionRepo.GetByID(salary.ID)
	require.NoError(t, err)
	assert.Equal(t, "r2", *got.Match.RemoteID)
	assert.Equal(t, models.ConfidenceMedium, *got.Match.Confidence)

	orphans, err := svc.ListOrphans(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "orphan", orphans[0].RemoteID)

	// terminal: no more remote calls, same counts
	p, err = svc.AdvanceMatchJob(ctx, f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobComplete, p.Status)
	assert.Equal(t, 2, p.MatchedCount)
	assert.Equal(t, 2, fake.ListCallCount())

	stats, err := svc.GetBatchStats(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.MatchedCount)
	assert.Equal(t, int64(1), stats.High.Count)
	assert.Equal(t, int64(1), stats.Medium.Count)
	assert.Equal(t, int64(1), stats.OrphanCount)
	assert.True(t, stats.TotalAmount.Equal(decimal.RequireFromString("55")), stats.TotalAmount.String())

	var audits []models.MatchAuditLog
	require.NoError(t, db.Where("action = ?", models.AuditActionAutoMatch).Find(&audits).Error)
	assert.Len(t, audits, 1)
}

func TestAdvanceMatchJobSinglePageGoesStraightToMatching(t *testing.T) {
	fake := &testutil.FakeLedger{
		Pages: [][]models.RemoteTransaction{{rt("r1", testutil.Date(2025, 3, 10), "45.00", models.RemoteTypeExpense)}},
	}
	svc, db, f := newTestService(t, fake)
	f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "-45.00", "")

	p, err := svc.AdvanceMatchJob(context.Background(), f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobMatching, p.Status)
}

func TestAdvanceMatchJobEmptyBatchCompletes(t *testing.T) {
	fake := &testutil.FakeLedger{}
	svc, _, f := newTestService(t, fake)

	p, err := svc.AdvanceMatchJob(context.Background(), f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobComplete, p.Status)
	assert.Zero(t, fake.ListCallCount())
}

func fullPages(n, size int) [][]models.RemoteTransaction {
	pages := make([][]models.RemoteTransaction, n)
	for i := range pages {
		for j := 0; j < size; j++ {
			id := fmt.Sprintf("p%d-%d", i+1, j)
			pages[i] = append(pages[i], rt(id, testutil.Date(2025, 3, 10), "1.00", models.RemoteTypeIncome))
		}
	}
	return pages
}

func TestAdvanceMatchJobStopsAtPageCap(t *testing.T) {
	fake := &testutil.FakeLedger{Pages: fullPages(25, 2)}
	svc, db, f := newTestService(t, fake)
	f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "500.00", "")

	p := advanceUntil(t, svc, f, models.MatchJobMatching, 30)
	assert.True(t, p.Truncated)
	assert.Equal(t, 20, p.CurrentPage)
	assert.Equal(t, 40, p.FetchedCount)
	assert.Equal(t, 20, fake.ListCallCount())
	assert.Contains(t, p.Message, "page limit")

	p = advanceUntil(t, svc, f, models.MatchJobComplete, 1)
	assert.True(t, p.Truncated)
	assert.Equal(t, 20, fake.ListCallCount())
}

func TestAdvanceMatchJobStopsOnShortPage(t *testing.T) {
	pages := fullPages(2, 2)
	pages = append(pages, pages[0][:1])
	fake := &testutil.FakeLedger{Pages: pages, TotalPages: 9}
	svc, db, f := newTestService(t, fake)
	f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "500.00", "")

	p := advanceUntil(t, svc, f, models.MatchJobMatching, 10)
	assert.Equal(t, 3, fake.ListCallCount())
	assert.Equal(t, 3, p.CurrentPage)
	assert.False(t, p.Truncated)
}

func TestAdvanceMatchJobCapturesRemoteError(t *testing.T) {
	fake := &testutil.FakeLedger{Pages: fullPages(3, 2)}
	svc, db, f := newTestService(t, fake)
	f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "1.00", "")
	ctx := context.Background()

	_, err := svc.AdvanceMatchJob(ctx, f.Batch.ID, f.UserID)
	require.NoError(t, err)

	fake.ListErr = &ledger.APIError{StatusCode: 503, Message: "maintenance"}
	p, err := svc.AdvanceMatchJob(ctx, f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobError, p.Status)
	assert.Contains(t, p.Error, "maintenance")
	assert.Zero(t, p.FetchedCount)
	assert.Contains(t, p.Message, "Matching failed")

	// error is terminal until reset
	fake.ListErr = nil
	p, err = svc.AdvanceMatchJob(ctx, f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobError, p.Status)
	assert.Equal(t, 2, fake.ListCallCount())

	p, err = svc.ResetMatchJob(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobPending, p.Status)
	assert.Zero(t, p.CurrentPage)
	assert.Nil(t, p.TotalPages)
	assert.Empty(t, p.Error)
	assert.False(t, p.Truncated)

	p, err = svc.AdvanceMatchJob(ctx, f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobFetching, p.Status)
	assert.Equal(t, 1, fake.ListCalls[len(fake.ListCalls)-1].Page)
}

type panickingLedger struct{ testutil.FakeLedger }

func (p *panickingLedger) ForInstallation(*models.RemoteInstallation) ledger.Client { return p }

func (p *panickingLedger) ListTransactions(context.Context, ledger.ListParams) (*ledger.Page, error) {
	panic("boom")
}

func TestAdvanceMatchJobRecoversPanic(t *testing.T) {
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)
	svc := NewReconciliationService(db, &panickingLedger{}, testConfig(), logger.Nop())
	f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "1.00", "")

	p, err := svc.AdvanceMatchJob(context.Background(), f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobError, p.Status)
	assert.Contains(t, p.Error, "boom")
}

func TestMatchingKeepsPushedTransactionsAndOrphansDisjoint(t *testing.T) {
	fake := &testutil.FakeLedger{
		Pages: [][]models.RemoteTransaction{{
			rt("pushed-remote", testutil.Date(2025, 3, 10), "30.00", models.RemoteTypeExpense),
			rt("auto", testutil.Date(2025, 3, 10), "30.00", models.RemoteTypeExpense),
		}, {
			rt("auto", testutil.Date(2025, 3, 10), "30.00", models.RemoteTypeExpense),
		}},
	}
	svc, db, f := newTestService(t, fake)
	pushed := f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "-30.00", "")
	plain := f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "-30.00", "")

	remoteID, number := "pushed-remote", "IMP-x"
	require.NoError(t, svc.transactionRepo.SetPushResult(pushed.ID, models.MatchFields{RemoteID: &remoteID, Number: &number}))

	advanceUntil(t, svc, f, models.MatchJobComplete, 5)

	got, err := svc.transactionRepo.GetByID(pushed.ID)
	require.NoError(t, err)
	assert.Equal(t, "pushed-remote", *got.Match.RemoteID)
	assert.Equal(t, models.MatchSourcePush, *got.Match.Source)

	got, err = svc.transactionRepo.GetByID(plain.ID)
	require.NoError(t, err)
	assert.Equal(t, "auto", *got.Match.RemoteID)

	orphans, err := svc.ListOrphans(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestMatchingSkipsRemoteIDsClaimedBySiblingBatches(t *testing.T) {
	fake := &testutil.FakeLedger{
		Pages: [][]models.RemoteTransaction{{
			rt("R", testutil.Date(2025, 4, 1), "45.00", models.RemoteTypeExpense),
			rt("P", testutil.Date(2025, 4, 1), "20.00", models.RemoteTypeExpense),
		}, {
			rt("O", testutil.Date(2025, 4, 1), "99.00", models.RemoteTypeExpense),
		}},
	}
	svc, db, first := newTestService(t, fake)
	march := first.AddTransaction(t, db, testutil.Date(2025, 3, 31), "-45.00", "")
	pushed := first.AddTransaction(t, db, testutil.Date(2025, 3, 31), "-20.00", "")
	remoteID, number := "P", "IMP-x"
	require.NoError(t, svc.transactionRepo.SetPushResult(pushed.ID, models.MatchFields{RemoteID: &remoteID, Number: &number}))

	advanceUntil(t, svc, first, models.MatchJobComplete, 5)
	got, err := svc.transactionRepo.GetByID(march.ID)
	require.NoError(t, err)
	require.True(t, got.Match.IsSet())
	assert.Equal(t, "R", *got.Match.RemoteID)

	second := first.NextBatch(t, db)
	april := second.AddTransaction(t, db, testutil.Date(2025, 4, 1), "-45.00", "")
	aprilSmall := second.AddTransaction(t, db, testutil.Date(2025, 4, 1), "-20.00", "")

	p := advanceUntil(t, svc, second, models.MatchJobComplete, 5)
	assert.Equal(t, 0, p.MatchedCount)

	for _, id := range []uuid.UUID{april.ID, aprilSmall.ID} {
		got, err := svc.transactionRepo.GetByID(id)
		require.NoError(t, err)
		assert.False(t, got.Match.IsSet())
	}

	orphans, err := svc.ListOrphans(second.Batch.ID, second.UserID)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "O", orphans[0].RemoteID)

	got, err = svc.transactionRepo.GetByID(march.ID)
	require.NoError(t, err)
	assert.Equal(t, "R", *got.Match.RemoteID)
}

func TestClearMatches(t *testing.T) {
	fake := &testutil.FakeLedger{
		Pages: [][]models.RemoteTransaction{{
			rt("r1", testutil.Date(2025, 3, 10), "45.00", models.RemoteTypeExpense),
			rt("orphan", testutil.Date(2025, 3, 10), "5.00", models.RemoteTypeIncome),
		}},
	}
	svc, db, f := newTestService(t, fake)
	tx := f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "-45.00", "")
	advanceUntil(t, svc, f, models.MatchJobComplete, 3)

	n, err := svc.ClearMatches(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := svc.transactionRepo.GetByID(tx.ID)
	require.NoError(t, err)
	assert.False(t, got.Match.IsSet())
	assert.Equal(t, models.TransactionStatusPending, got.Status)

	count, err := svc.orphanRepo.CountByBatch(f.Batch.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	p, err := svc.GetProgress(f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobPending, p.Status)

	_, err = svc.ClearMatches(f.Batch.ID, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReconcileAccount(t *testing.T) {
	fake := &testutil.FakeLedger{
		Pages: [][]models.RemoteTransaction{
			{
				rt("taken", testutil.Date(2025, 4, 1), "10.00", models.RemoteTypeExpense),
				rt("r1", testutil.Date(2025, 4, 2), "10.00", models.RemoteTypeExpense),
			},
			{
				rt("orphan", testutil.Date(2025, 4, 3), "7.00", models.RemoteTypeIncome),
				rt("pad", testutil.Date(2025, 4, 9), "7.00", models.RemoteTypeIncome),
			},
		},
	}
	svc, db, f := newTestService(t, fake)
	matched := f.AddTransaction(t, db, testutil.Date(2025, 4, 1), "-10.00", "")
	open := f.AddTransaction(t, db, testutil.Date(2025, 4, 4), "-10.00", "")

	taken, number := "taken", "TRX-taken"
	require.NoError(t, svc.transactionRepo.SetMatch(matched.ID, models.MatchFields{RemoteID: &taken, Number: &number}))

	res, err := svc.ReconcileAccount(context.Background(), f.Account.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PagesFetched)
	assert.Equal(t, 4, res.FetchedCount)
	assert.Equal(t, 1, res.Considered)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, open.ID, res.Matches[0].TransactionID)
	assert.Equal(t, "r1", res.Matches[0].RemoteID)
	assert.Equal(t, 2, res.Matches[0].DayOffset)
	assert.Equal(t, models.ConfidenceMedium, res.Matches[0].Confidence)
	require.Len(t, res.Orphans, 1)
	assert.Equal(t, "orphan", res.Orphans[0].RemoteID)

	got, err := svc.transactionRepo.GetByID(open.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", *got.Match.RemoteID)

	// orphans are not stored for account runs
	count, err := svc.orphanRepo.CountByBatch(f.Batch.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = svc.ReconcileAccount(context.Background(), f.Account.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchDone(t *testing.T) {
	full := &ledger.Page{Items: make([]models.RemoteTransaction, 2), TotalPages: 25}
	done, truncated := fetchDone(19, full, 2, 20)
	assert.False(t, done)
	assert.False(t, truncated)

	done, truncated = fetchDone(20, full, 2, 20)
	assert.True(t, done)
	assert.True(t, truncated)

	last := &ledger.Page{Items: make([]models.RemoteTransaction, 2), TotalPages: 20}
	done, truncated = fetchDone(20, last, 2, 20)
	assert.True(t, done)
	assert.False(t, truncated)

	short := &ledger.Page{Items: make([]models.RemoteTransaction, 1), TotalPages: 25}
	done, truncated = fetchDone(3, short, 2, 20)
	assert.True(t, done)
	assert.False(t, truncated)

	unknown := &ledger.Page{Items: make([]models.RemoteTransaction, 2)}
	done, truncated = fetchDone(1, unknown, 2, 20)
	assert.False(t, done)
	assert.False(t, truncated)

	done, truncated = fetchDone(20, unknown, 2, 20)
	assert.True(t, done)
	assert.True(t, truncated)

	unknownShort := &ledger.Page{Items: make([]models.RemoteTransaction, 1)}
	done, truncated = fetchDone(2, unknownShort, 2, 20)
	assert.True(t, done)
	assert.False(t, truncated)
}

func TestAdvanceMatchJobWithoutPageCountFetchesUntilShortPage(t *testing.T) {
	fake := &testutil.FakeLedger{
		OmitTotal: true,
		Pages: [][]models.RemoteTransaction{
			{rt("a", testutil.Date(2025, 3, 10), "1.00", models.RemoteTypeExpense), rt("b", testutil.Date(2025, 3, 10), "2.00", models.RemoteTypeExpense)},
			{rt("c", testutil.Date(2025, 3, 10), "3.00", models.RemoteTypeExpense), rt("d", testutil.Date(2025, 3, 10), "4.00", models.RemoteTypeExpense)},
			{rt("e", testutil.Date(2025, 3, 10), "5.00", models.RemoteTypeExpense)},
		},
	}
	svc, db, f := newTestService(t, fake)
	f.AddTransaction(t, db, testutil.Date(2025, 3, 10), "-3.00", "")

	p, err := svc.AdvanceMatchJob(context.Background(), f.Batch.ID, f.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchJobFetching, p.Status)
	assert.Nil(t, p.TotalPages)

	p = advanceUntil(t, svc, f, models.MatchJobComplete, 5)
	assert.Equal(t, 3, fake.ListCallCount())
	assert.Equal(t, 5, p.FetchedCount)
	assert.False(t, p.Truncated)
	assert.Equal(t, 1, p.MatchedCount)
}
