package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/events"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/observability"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService charges a payer wallet and distributes the fee across service wallets.
type PaymentService struct {
	store     LedgerStore
	routes    *FeeRoutes
	publisher events.Publisher
}

func NewPaymentService(store LedgerStore, routes *FeeRoutes, publisher events.Publisher) *PaymentService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &PaymentService{store: store, routes: routes, publisher: publisher}
}

// Split is one named leg of a payment.
type Split struct {
	Role   string `json:"role"`
	Amount int64  `json:"amount"`
}

// PaymentRequest describes a split payment.
type PaymentRequest struct {
	WalletID   uuid.UUID
	Service    string
	Splits     []Split
	Meta       json.RawMessage
	ShipmentID *string
}

// PaymentLeg is the credit applied to one destination wallet.
type PaymentLeg struct {
	Role     string    `json:"role"`
	WalletID uuid.UUID `json:"wallet_id"`
	Amount   int64     `json:"amount"`
}

// PaymentResult describes a committed split.
type PaymentResult struct {
	TxID         string       `json:"tx_id"`
	Total        int64        `json:"total"`
	PayerBalance int64        `json:"payer_balance"`
	Legs         []PaymentLeg `json:"legs"`
}

// Routes exposes the fee table so callers can translate positional amounts.
func (s *PaymentService) Routes() *FeeRoutes {
	return s.routes
}

// ProcessPayment debits the payer by the sum of the splits and credits each service
// wallet with its leg. All wallets are locked in ascending id order and every balance
// change and transaction insert commits together or not at all.
func (s *PaymentService) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	if req.WalletID == uuid.Nil {
		return nil, validationf("wallet_id is required")
	}
	service := strings.ToLower(strings.TrimSpace(req.Service))
	if service == "" {
		return nil, validationf("service is required")
	}
	if len(req.Splits) == 0 {
		return nil, validationf("at least one split is required")
	}

	legs, total, err := s.routes.resolve(service, req.Splits)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, validationf("payment total must be positive")
	}

	txID := domain.NewTxID()
	meta := metaJSON(req.Meta)
	lockIDs := make([]uuid.UUID, 0, len(legs)+1)
	lockIDs = append(lockIDs, req.WalletID)
	for _, leg := range legs {
		lockIDs = append(lockIDs, leg.WalletID)
	}

	result := &PaymentResult{TxID: txID, Total: total}
	err = s.store.RunInTx(ctx, func(l repository.Ledger) error {
		result.Legs = result.Legs[:0]
		locked, err := l.LockWallets(ctx, lockIDs...)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				if _, payerErr := l.GetWallet(ctx, req.WalletID); payerErr != nil {
					return payerErr
				}
				return fmt.Errorf("%w: %s wallet not found", domain.ErrNotFound, service)
			}
			return err
		}

		payer := locked[req.WalletID]
		for _, leg := range legs {
			if dest := locked[leg.WalletID]; dest.Currency != payer.Currency {
				return validationf("%s wallet currency %s does not match payer currency %s", leg.Role, dest.Currency, payer.Currency)
			}
		}
		if payer.Available() < total {
			return fmt.Errorf("wallet %s: %w", payer.ID, domain.ErrInsufficientFunds)
		}

		floor := int64(0)
		balance, err := l.AdjustBalance(ctx, payer.ID, -total, &floor)
		if err != nil {
			return err
		}
		result.PayerBalance = balance

		if err := l.InsertTransaction(ctx, &models.Transaction{
			WalletID:   payer.ID,
			ShipmentID: req.ShipmentID,
			TxID:       txID,
			TxRef:      payer.TxRef,
			Amount:     total,
			Currency:   payer.Currency,
			Type:       domain.TxTypePayment,
			Direction:  domain.DirectionDebit,
			Status:     domain.TxStatusSuccessful,
			Meta:       meta,
		}); err != nil {
			return err
		}

		for _, leg := range legs {
			if leg.Amount == 0 {
				continue
			}
			if _, err := l.AdjustBalance(ctx, leg.WalletID, leg.Amount, nil); err != nil {
				return err
			}
			if err := l.InsertTransaction(ctx, &models.Transaction{
				WalletID:   leg.WalletID,
				ShipmentID: req.ShipmentID,
				TxID:       txID,
				TxRef:      payer.TxRef,
				Amount:     leg.Amount,
				Currency:   payer.Currency,
				Type:       domain.TxTypePayment,
				Direction:  domain.DirectionCredit,
				Status:     domain.TxStatusSuccessful,
				Meta:       meta,
			}); err != nil {
				return err
			}
			result.Legs = append(result.Legs, PaymentLeg{Role: leg.Role, WalletID: leg.WalletID, Amount: leg.Amount})
		}
		return nil
	})
	if err != nil {
		observability.IncrementLedgerOperation("payment_split", outcomeLabel(err))
		zap.L().Warn("payment split rejected",
			zap.String("wallet_id", req.WalletID.String()),
			zap.String("service", service),
			zap.String("tx_id", txID),
			zap.Int64("total", total),
			zap.Error(err),
		)
		return nil, fmt.Errorf("processing payment: %w", err)
	}
	observability.IncrementLedgerOperation("payment_split", "ok")

	events.Emit(ctx, s.publisher, zap.L(), events.PaymentSplit, req.WalletID.String(), map[string]any{
		"tx_id":     txID,
		"wallet_id": req.WalletID,
		"service":   service,
		"total":     total,
		"legs":      result.Legs,
	})
	return result, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
