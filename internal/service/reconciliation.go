package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store LedgerStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store LedgerStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks that every wallet balance equals the signed sum of its successful
// transactions and that every held amount equals its pending payouts. It returns the
// wallets that drifted.
func (s *ReconciliationService) Run(ctx context.Context) ([]models.LedgerDiscrepancy, error) {
	discrepancies, err := s.store.Ledger().LedgerDiscrepancies(ctx)
	if err != nil {
		return nil, fmt.Errorf("run ledger discrepancy query: %w", err)
	}

	if len(discrepancies) > 0 {
		for _, d := range discrepancies {
			observability.IncrementLedgerImbalance(domain.CurrencyNGN)
			zap.L().Error("CRITICAL: wallet balance diverged from ledger",
				zap.String("wallet_id", d.WalletID.String()),
				zap.Int64("balance", d.Balance),
				zap.Int64("ledger_sum", d.LedgerSum),
				zap.Int64("difference", d.Balance-d.LedgerSum),
				zap.Int64("held_amount", d.HeldAmount),
				zap.Int64("pending_sum", d.PendingSum),
			)
		}
		return discrepancies, nil
	}

	zap.L().Info("Ledger Balanced")
	return nil, nil
}
