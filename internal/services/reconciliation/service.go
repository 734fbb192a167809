package reconciliation

import (
	"sync"

	"ledger-reconciliation-backend/internal/config"
	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type ReconciliationService struct {
	db              *gorm.DB
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.ImportedTransactionRepository
	jobRepo         *repository.MatchJobRepository
	orphanRepo      *repository.OrphanRepository
	auditRepo       *repository.AuditRepository
	ledgers         ledger.Factory
	cfg             config.MatchingConfig
	log             zerolog.Logger
	jobLocks        sync.Map // job ID -> *sync.Mutex
}

func NewReconciliationService(db *gorm.DB, ledgers ledger.Factory, cfg config.MatchingConfig, log zerolog.Logger) *ReconciliationService {
	return &ReconciliationService{
		db:              db,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewImportedTransactionRepository(db),
		jobRepo:         repository.NewMatchJobRepository(db),
		orphanRepo:      repository.NewOrphanRepository(db),
		auditRepo:       repository.NewAuditRepository(db),
		ledgers:         ledgers,
		cfg:             cfg,
		log:             log.With().Str("component", "reconciliation").Logger(),
	}
}

// Eligibility is the outcome of CanMatch. When Eligible is false only Reason
// is set.
type Eligibility struct {
	Eligible     bool                       `json:"eligible"`
	Reason       string                     `json:"reason,omitempty"`
	Batch        *models.ImportBatch        `json:"-"`
	Account      *models.Account            `json:"-"`
	Installation *models.RemoteInstallation `json:"-"`
}

func ineligible(reason string) *Eligibility {
	return &Eligibility{Reason: reason}
}

// CanMatch reports whether a batch may be matched against the remote ledger.
// A missing or foreign batch is an error; every other failed condition is an
// ineligible result.
func (s *ReconciliationService) CanMatch(batchID, userID uuid.UUID) (*Eligibility, error) {
	batch, err := s.accountRepo.GetBatch(batchID, userID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchStatusCompleted {
		return ineligible(ReasonBatchNotCompleted), nil
	}

	account, err := s.accountRepo.GetAccount(batch.AccountID, userID)
	if err != nil {
		return nil, err
	}
	elig, err := s.accountEligibility(account)
	if err != nil || !elig.Eligible {
		return elig, err
	}
	elig.Batch = batch
	return elig, nil
}

func (s *ReconciliationService) accountEligibility(account *models.Account) (*Eligibility, error) {
	if account.RemoteAccountID == nil || *account.RemoteAccountID == "" {
		return ineligible(ReasonAccountNotLinked), nil
	}

	insts, err := s.accountRepo.ActiveInstallations(account.EntityID)
	if err != nil {
		return nil, err
	}
	switch len(insts) {
	case 0:
		return ineligible(ReasonNoInstallation), nil
	case 1:
	default:
		return ineligible(ReasonMultipleInstallations), nil
	}

	return &Eligibility{
		Eligible:     true,
		Account:      account,
		Installation: &insts[0],
	}, nil
}

// lockJob serializes steps on one job within this process.
func (s *ReconciliationService) lockJob(id uuid.UUID) func() {
	val, _ := s.jobLocks.LoadOrStore(id, &sync.Mutex{})
	mu := val.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *ReconciliationService) DB() *gorm.DB {
	return s.db
}
