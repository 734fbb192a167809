// Package testutil builds throwaway databases and fixtures for tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"ledger-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with every model migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// Fixture is a user owning one entity with one bank account, one active
// installation and one completed batch.
type Fixture struct {
	UserID       uuid.UUID
	Entity       models.Entity
	Account      models.Account
	Installation models.RemoteInstallation
	Batch        models.ImportBatch
}

func Seed(t *testing.T, db *gorm.DB) Fixture {
	t.Helper()
	userID := uuid.New()
	remoteAccount := "42"

	f := Fixture{
		UserID: userID,
		Entity: models.Entity{ID: uuid.New(), UserID: userID, Name: "Acme", BaseCurrency: "USD"},
	}
	f.Account = models.Account{
		ID:              uuid.New(),
		EntityID:        f.Entity.ID,
		UserID:          userID,
		Name:            "Checking",
		Class:           models.AccountClassBank,
		Currency:        "USD",
		RemoteAccountID: &remoteAccount,
	}
	f.Installation = models.RemoteInstallation{
		ID:           uuid.New(),
		EntityID:     f.Entity.ID,
		Name:         "main",
		BaseURL:      "http://ledger.invalid",
		CompanyID:    "7",
		AccessToken:  "token",
		BaseCurrency: "USD",
		Active:       true,
	}
	f.Batch = models.ImportBatch{
		ID:        uuid.New(),
		UserID:    userID,
		AccountID: f.Account.ID,
		Filename:  "statement.csv",
		Status:    models.BatchStatusCompleted,
		StartedAt: time.Now(),
	}

	require.NoError(t, db.Create(&f.Entity).Error)
	require.NoError(t, db.Create(&f.Account).Error)
	require.NoError(t, db.Create(&f.Installation).Error)
	require.NoError(t, db.Create(&f.Batch).Error)
	return f
}

// AddTransaction inserts a pending imported transaction into the fixture's
// batch.
func (f Fixture) AddTransaction(t *testing.T, db *gorm.DB, date time.Time, amount, description string) models.ImportedTransaction {
	t.Helper()
	tx := models.ImportedTransaction{
		ID:              uuid.New(),
		BatchID:         f.Batch.ID,
		AccountID:       f.Account.ID,
		TransactionDate: date,
		Currency:        "USD",
		Amount:          decimal.RequireFromString(amount),
		Description:     description,
		Status:          models.TransactionStatusPending,
	}
	require.NoError(t, db.Create(&tx).Error)
	return tx
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// NextBatch adds another completed batch on the same account and returns a
// fixture pointing at it.
func (f Fixture) NextBatch(t *testing.T, db *gorm.DB) Fixture {
	t.Helper()
	f.Batch = models.ImportBatch{
		ID:        uuid.New(),
		UserID:    f.UserID,
		AccountID: f.Account.ID,
		Filename:  "statement-next.csv",
		Status:    models.BatchStatusCompleted,
		StartedAt: time.Now(),
	}
	require.NoError(t, db.Create(&f.Batch).Error)
	return f
}
