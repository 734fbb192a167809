package testutil

import (
	"context"
	"fmt"
	"sync"

	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/models"
)

// FakeLedger serves canned pages and records every call. It implements both
// ledger.Factory and ledger.Client; every installation shares it.
type FakeLedger struct {
	mu sync.Mutex

	Pages      [][]models.RemoteTransaction
	TotalPages int // reported page count; len(Pages) when zero
	OmitTotal  bool
	ListErr    error
	CreateErr  error

	ListCalls     []ledger.ListParams
	Created       []ledger.CreateTransactionRequest
	Transfers     []ledger.CreateTransferRequest
	Installations []string
	nextRemoteID  int
}

func (f *FakeLedger) ForInstallation(inst *models.RemoteInstallation) ledger.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Installations = append(f.Installations, inst.Name)
	return f
}

func (f *FakeLedger) ListTransactions(ctx context.Context, params ledger.ListParams) (*ledger.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls = append(f.ListCalls, params)
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	total := f.TotalPages
	if total == 0 {
		total = len(f.Pages)
	}
	if f.OmitTotal {
		total = 0
	}
	page := &ledger.Page{TotalPages: total}
	if params.Page >= 1 && params.Page <= len(f.Pages) {
		page.Items = append(page.Items, f.Pages[params.Page-1]...)
	}
	for _, p := range f.Pages {
		page.TotalCount += len(p)
	}
	return page, nil
}

func (f *FakeLedger) CreateTransaction(ctx context.Context, req *ledger.CreateTransactionRequest) (*ledger.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.Created = append(f.Created, *req)
	return f.result(req.Number), nil
}

func (f *FakeLedger) CreateTransfer(ctx context.Context, req *ledger.CreateTransferRequest) (*ledger.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.Transfers = append(f.Transfers, *req)
	return f.result(req.Number), nil
}

func (f *FakeLedger) result(number string) *ledger.CreateResult {
	f.nextRemoteID++
	return &ledger.CreateResult{RemoteID: fmt.Sprint(1000 + f.nextRemoteID), Number: number}
}

func (f *FakeLedger) ListCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ListCalls)
}
