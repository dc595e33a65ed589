package service

import (
	"context"

	"github.com/ayo6706/logistics-wallet/internal/repository"
)

// LedgerStore defines the minimal data access contract required by services.
type LedgerStore interface {
	Ledger() repository.Ledger
	RunInTx(ctx context.Context, fn func(l repository.Ledger) error) error
}
