package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/repository"
)

var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusSuccessful: {},
		domain.TxStatusFailed:     {},
	},
	domain.TxStatusSuccessful: {},
	domain.TxStatusFailed:     {},
}

func normalizeState(state string) string {
	return strings.ToLower(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

// transitionTransaction moves tx to next, optionally replacing its tx id with the
// partner's reference. The update is conditional on the stored status still matching
// tx.Status, so a concurrent resolver gets ErrConflict.
func transitionTransaction(ctx context.Context, l repository.Ledger, tx models.Transaction, next, txID string, gatewayResponse json.RawMessage) error {
	if normalizeState(tx.Status) == normalizeState(next) {
		return nil
	}
	if !canTransition(tx.Status, next) {
		return fmt.Errorf("%w: invalid transaction state transition: %s -> %s", domain.ErrConflict, tx.Status, next)
	}
	if err := l.UpdateTransactionStatus(ctx, tx.ID, repository.TransactionUpdate{
		From:            normalizeState(tx.Status),
		To:              normalizeState(next),
		TxID:            txID,
		GatewayResponse: gatewayResponse,
	}); err != nil {
		return fmt.Errorf("update transaction %s state: %w", tx.ID, err)
	}
	return nil
}
