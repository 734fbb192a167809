// Package writeback creates transactions in the remote ledger from imported
// ones and records the remote ids locally.
package writeback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-reconciliation-backend/internal/hints"
	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/repository"
	"ledger-reconciliation-backend/internal/services/matching"
	"ledger-reconciliation-backend/internal/services/reconciliation"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PushNumberPrefix      = "IMP-"
	ReplicateNumberPrefix = "REP-"
)

var (
	// ErrAlreadyPushed is returned for a transaction whose match slot already
	// holds a pushed remote transaction.
	ErrAlreadyPushed = errors.New("transaction was already pushed to the ledger")
	// ErrAlreadyMatched is returned when pushing a transaction that already
	// matches an existing remote transaction.
	ErrAlreadyMatched = errors.New("transaction is already matched to a ledger transaction")
	// ErrAlreadyReplicated is returned for a second replication of the same
	// transaction.
	ErrAlreadyReplicated = errors.New("transaction was already replicated")
)

// Result identifies what was created remotely.
type Result struct {
	TransactionID     uuid.UUID        `json:"transaction_id"`
	RemoteID          string           `json:"remote_id"`
	Number            string           `json:"number"`
	EntityID          *uuid.UUID       `json:"entity_id,omitempty"`
	DestinationAmount *decimal.Decimal `json:"destination_amount,omitempty"`
	ExchangeRate      *decimal.Decimal `json:"exchange_rate,omitempty"`
}

type WriteBackService struct {
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.ImportedTransactionRepository
	auditRepo       *repository.AuditRepository
	ledgers         ledger.Factory
	hints           *hints.Suggester
	validate        *validator.Validate
	timeout         time.Duration
	log             zerolog.Logger
}

func NewWriteBackService(db *gorm.DB, ledgers ledger.Factory, suggester *hints.Suggester, timeout time.Duration, log zerolog.Logger) *WriteBackService {
	return &WriteBackService{
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewImportedTransactionRepository(db),
		auditRepo:       repository.NewAuditRepository(db),
		ledgers:         ledgers,
		hints:           suggester,
		validate:        newValidator(),
		timeout:         timeout,
		log:             log.With().Str("component", "writeback").Logger(),
	}
}

// source is an imported transaction with everything needed to write it
// back, loaded on behalf of its owner.
type source struct {
	tx           *models.ImportedTransaction
	account      *models.Account
	entity       *models.Entity
	installation *models.RemoteInstallation
}

func (s *WriteBackService) load(txID, userID uuid.UUID) (*source, error) {
	tx, err := s.transactionRepo.GetByID(txID)
	if err != nil {
		return nil, err
	}
	// ownership goes through the batch
	if _, err := s.accountRepo.GetBatch(tx.BatchID, userID); err != nil {
		return nil, err
	}
	account, err := s.accountRepo.GetAccount(tx.AccountID, userID)
	if err != nil {
		return nil, err
	}
	entity, err := s.accountRepo.GetEntity(account.EntityID, userID)
	if err != nil {
		return nil, err
	}
	return &source{tx: tx, account: account, entity: entity}, nil
}

// withInstallation resolves the single active installation of the source
// account's entity, which must also be linked to a remote account.
func (s *WriteBackService) withInstallation(src *source) error {
	if src.account.RemoteAccountID == nil || *src.account.RemoteAccountID == "" {
		return &reconciliation.NotEligibleError{Reason: reconciliation.ReasonAccountNotLinked}
	}
	inst, err := s.singleInstallation(src.entity.ID)
	if err != nil {
		return err
	}
	src.installation = inst
	return nil
}

func (s *WriteBackService) singleInstallation(entityID uuid.UUID) (*models.RemoteInstallation, error) {
	insts, err := s.accountRepo.ActiveInstallations(entityID)
	if err != nil {
		return nil, err
	}
	switch len(insts) {
	case 0:
		return nil, &reconciliation.NotEligibleError{Reason: reconciliation.ReasonNoInstallation}
	case 1:
		return &insts[0], nil
	default:
		return nil, &reconciliation.NotEligibleError{Reason: reconciliation.ReasonMultipleInstallations}
	}
}

func checkPushable(tx *models.ImportedTransaction) error {
	if !tx.Match.IsSet() {
		return nil
	}
	if tx.Match.Source != nil && *tx.Match.Source == models.MatchSourcePush {
		return ErrAlreadyPushed
	}
	return ErrAlreadyMatched
}

// Push creates a remote transaction from an imported one. The remote number
// is derived from the transaction id so a repeated push can be recognised on
// the remote side.
func (s *WriteBackService) Push(ctx context.Context, txID, userID uuid.UUID, req PushRequest) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	src, err := s.load(txID, userID)
	if err != nil {
		return nil, err
	}
	if err := checkPushable(src.tx); err != nil {
		return nil, err
	}
	if err := s.withInstallation(src); err != nil {
		return nil, err
	}

	typ, amount := matching.ExpectedRemote(src.tx.Amount, src.account.Class)
	if req.Type != "" {
		typ = req.Type
	}
	if !req.Amount.IsZero() {
		amount = req.Amount
	}
	paidAt := pickDate(req.Date, src.tx.TransactionDate)

	number := PushNumberPrefix + src.tx.ID.String()
	created, err := s.create(ctx, src.installation, &ledger.CreateTransactionRequest{
		Type:          typ,
		AccountID:     *src.account.RemoteAccountID,
		PaidAt:        paidAt,
		Amount:        amount,
		CurrencyCode:  src.tx.Currency,
		Number:        number,
		Description:   firstNonEmpty(req.Description, src.tx.Description),
		Reference:     firstNonEmpty(req.Reference, src.tx.ReferenceNumber),
		CategoryID:    req.CategoryID,
		ContactID:     req.ContactID,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to push transaction: %w", err)
	}

	display := matching.DisplayAmount(models.RemoteTransaction{Type: typ, Amount: amount})
	if err := s.recordPush(src.tx, created, paidAt, display, firstNonEmpty(req.Description, src.tx.Description), req.ContactName, req.CategoryName); err != nil {
		return nil, err
	}

	s.afterWrite(src, models.AuditActionPush, userID, created.RemoteID, map[string]interface{}{
		"number":      created.Number,
		"type":        typ,
		"amount":      amount.StringFixed(2),
		"category_id": req.CategoryID,
	}, hints.Classification{
		Type:          typ,
		CategoryID:    req.CategoryID,
		CategoryName:  req.CategoryName,
		ContactID:     req.ContactID,
		ContactName:   req.ContactName,
		PaymentMethod: req.PaymentMethod,
	})
	return &Result{TransactionID: src.tx.ID, RemoteID: created.RemoteID, Number: created.Number}, nil
}

// PushTransfer creates a remote transfer between the transaction's account
// and a counterpart account. The direction follows the sign convention:
// expenses leave the source account.
func (s *WriteBackService) PushTransfer(ctx context.Context, txID, userID uuid.UUID, req TransferRequest) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	src, err := s.load(txID, userID)
	if err != nil {
		return nil, err
	}
	if err := checkPushable(src.tx); err != nil {
		return nil, err
	}
	if err := s.withInstallation(src); err != nil {
		return nil, err
	}
	if req.CounterpartAccountID == *src.account.RemoteAccountID {
		return nil, &ValidationError{Message: "counterpart_account_id must differ from the transaction's account"}
	}

	typ, amount := matching.ExpectedRemote(src.tx.Amount, src.account.Class)
	if !req.Amount.IsZero() {
		amount = req.Amount
	}
	from, to := *src.account.RemoteAccountID, req.CounterpartAccountID
	if typ == models.RemoteTypeIncome {
		from, to = to, from
	}
	transferredAt := pickDate(req.Date, src.tx.TransactionDate)
	number := PushNumberPrefix + src.tx.ID.String()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	created, err := s.ledgers.ForInstallation(src.installation).CreateTransfer(ctx, &ledger.CreateTransferRequest{
		FromAccountID: from,
		ToAccountID:   to,
		TransferredAt: transferredAt,
		Amount:        amount,
		Number:        number,
		Description:   firstNonEmpty(req.Description, src.tx.Description),
		Reference:     firstNonEmpty(req.Reference, src.tx.ReferenceNumber),
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to push transfer: %w", err)
	}
	if created.Number == "" {
		created.Number = number
	}

	display := matching.DisplayAmount(models.RemoteTransaction{Type: typ, Amount: amount})
	if err := s.recordPush(src.tx, created, transferredAt, display, firstNonEmpty(req.Description, src.tx.Description), "", ""); err != nil {
		return nil, err
	}

	s.afterWrite(src, models.AuditActionPushTransfer, userID, created.RemoteID, map[string]interface{}{
		"number": created.Number,
		"from":   from,
		"to":     to,
		"amount": amount.StringFixed(2),
	}, hints.Classification{Type: typ, PaymentMethod: req.PaymentMethod})
	return &Result{TransactionID: src.tx.ID, RemoteID: created.RemoteID, Number: created.Number}, nil
}

// Replicate creates a copy of the transaction in another entity's ledger and
// records it in the replication slot. The match slot is left alone.
func (s *WriteBackService) Replicate(ctx context.Context, txID, userID uuid.UUID, req ReplicateRequest) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	src, err := s.load(txID, userID)
	if err != nil {
		return nil, err
	}
	if src.tx.Replication.RemoteID != nil {
		return nil, ErrAlreadyReplicated
	}
	if req.TargetEntityID == src.entity.ID {
		return nil, &ValidationError{Message: "target_entity_id must differ from the transaction's entity"}
	}
	target, err := s.accountRepo.GetEntity(req.TargetEntityID, userID)
	if err != nil {
		return nil, err
	}
	targetInst, err := s.singleInstallation(target.ID)
	if err != nil {
		return nil, err
	}

	typ, amount := matching.ExpectedRemote(src.tx.Amount, src.account.Class)
	if req.Type != "" {
		typ = req.Type
	}

	sourceCurrency := s.baseCurrency(src.entity)
	targetCurrency := firstNonEmpty(targetInst.BaseCurrency, target.BaseCurrency)
	payload := &ledger.CreateTransactionRequest{
		Type:          typ,
		AccountID:     req.TargetAccountID,
		PaidAt:        pickDate(req.Date, src.tx.TransactionDate),
		Amount:        amount,
		CurrencyCode:  src.tx.Currency,
		Number:        ReplicateNumberPrefix + src.tx.ID.String(),
		Description:   firstNonEmpty(req.Description, src.tx.Description),
		Reference:     src.tx.ReferenceNumber,
		CategoryID:    req.CategoryID,
		ContactID:     req.ContactID,
		PaymentMethod: req.PaymentMethod,
	}

	var destAmount, rate *decimal.Decimal
	if sourceCurrency != targetCurrency {
		if req.ExchangeRate == nil {
			return nil, &ValidationError{Message: fmt.Sprintf("exchange_rate is required to replicate from %s to %s", sourceCurrency, targetCurrency)}
		}
		converted := amount.Mul(*req.ExchangeRate).Round(2)
		destAmount, rate = &converted, req.ExchangeRate
		payload.Amount = converted
		payload.CurrencyCode = targetCurrency
		payload.CurrencyRate = req.ExchangeRate
	}

	created, err := s.create(ctx, targetInst, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to replicate transaction: %w", err)
	}

	now := time.Now().UTC()
	entityID := target.ID
	if err := s.transactionRepo.SetReplication(src.tx.ID, models.ReplicationFields{
		RemoteID: &created.RemoteID,
		Number:   &created.Number,
		EntityID: &entityID,
		At:       &now,
	}); err != nil {
		return nil, fmt.Errorf("replicated as %s but failed to record it: %w", created.RemoteID, err)
	}

	details := map[string]interface{}{
		"number":        created.Number,
		"target_entity": target.ID.String(),
		"amount":        payload.Amount.StringFixed(2),
		"currency":      payload.CurrencyCode,
	}
	if rate != nil {
		details["exchange_rate"] = rate.String()
	}
	s.afterWrite(src, models.AuditActionReplicate, userID, created.RemoteID, details, hints.Classification{
		Type:          typ,
		CategoryID:    req.CategoryID,
		CategoryName:  req.CategoryName,
		ContactID:     req.ContactID,
		ContactName:   req.ContactName,
		PaymentMethod: req.PaymentMethod,
	})
	return &Result{
		TransactionID:     src.tx.ID,
		RemoteID:          created.RemoteID,
		Number:            created.Number,
		EntityID:          &entityID,
		DestinationAmount: destAmount,
		ExchangeRate:      rate,
	}, nil
}

// Suggest pre-fills a classification for the transaction from past pushes or
// keyword rules.
func (s *WriteBackService) Suggest(txID, userID uuid.UUID) (*hints.Suggestion, bool, error) {
	src, err := s.load(txID, userID)
	if err != nil {
		return nil, false, err
	}
	suggestion, ok := s.hints.Suggest(src.entity.ID, src.tx.Description)
	return suggestion, ok, nil
}

func (s *WriteBackService) baseCurrency(entity *models.Entity) string {
	if inst, err := s.singleInstallation(entity.ID); err == nil && inst.BaseCurrency != "" {
		return inst.BaseCurrency
	}
	return entity.BaseCurrency
}

func (s *WriteBackService) create(ctx context.Context, inst *models.RemoteInstallation, req *ledger.CreateTransactionRequest) (*ledger.CreateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	created, err := s.ledgers.ForInstallation(inst).CreateTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	if created.Number == "" {
		created.Number = req.Number
	}
	return created, nil
}

func (s *WriteBackService) recordPush(tx *models.ImportedTransaction, created *ledger.CreateResult, date string, amount decimal.Decimal, description, contact, category string) error {
	fields := models.MatchFields{
		RemoteID:    &created.RemoteID,
		Number:      &created.Number,
		Amount:      decimal.NewNullDecimal(amount),
		Description: optional(description),
		Contact:     optional(contact),
		Category:    optional(category),
	}
	if d, err := time.Parse("2006-01-02", date); err == nil {
		fields.Date = &d
	}
	if err := s.transactionRepo.SetPushResult(tx.ID, fields); err != nil {
		return fmt.Errorf("pushed as %s but failed to record it: %w", created.RemoteID, err)
	}
	return nil
}

// afterWrite does the best-effort bookkeeping of a successful write. Neither
// step can fail the write.
func (s *WriteBackService) afterWrite(src *source, action models.AuditAction, userID uuid.UUID, remoteID string, details map[string]interface{}, c hints.Classification) {
	batchID, txID := src.tx.BatchID, src.tx.ID
	if err := s.auditRepo.Record(models.MatchAuditLog{
		BatchID:       &batchID,
		TransactionID: &txID,
		Action:        action,
		RemoteID:      remoteID,
		PerformedBy:   userID,
	}, details); err != nil {
		s.log.Warn().Err(err).Str("action", string(action)).Msg("failed to write audit log")
	}

	s.hints.Record(src.entity.ID, src.tx.Description, c)

	s.log.Info().
		Str("action", string(action)).
		Str("transaction_id", txID.String()).
		Str("remote_id", remoteID).
		Msg("transaction written to ledger")
}

func pickDate(override string, fallback time.Time) string {
	if override != "" {
		return override
	}
	return fallback.Format("2006-01-02")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
