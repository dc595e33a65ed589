package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/events"
	"github.com/ayo6706/logistics-wallet/internal/gateway"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/observability"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	PayoutStatusSuccessful = "successful"
	PayoutStatusPending    = "pending"
)

// PayoutService moves wallet funds to external bank accounts through the partner.
type PayoutService struct {
	store     LedgerStore
	gateway   gateway.Gateway
	publisher events.Publisher
	now       func() time.Time
}

func NewPayoutService(store LedgerStore, gw gateway.Gateway, publisher events.Publisher) *PayoutService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &PayoutService{store: store, gateway: gw, publisher: publisher, now: time.Now}
}

// PayoutRequest holds the receiver details for a bank payout. Amounts are decimal strings
// in major units.
type PayoutRequest struct {
	WalletID         uuid.UUID
	ReceiverAmount   string
	ReceiverCurrency string
	SenderAmount     string
	SenderCurrency   string
	TransferMethod   string
	ReceiverType     string
	AccountNumber    string
	AccountName      string
	SortCode         string
	CountryCode      string
	Meta             json.RawMessage
}

// PayoutOutcome is returned for both settled and pending payouts.
type PayoutOutcome struct {
	Status          string          `json:"status"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	TransferRef     string          `json:"transfer_ref"`
	PayoutRef       string          `json:"payout_ref,omitempty"`
	Amount          int64           `json:"amount"`
	Balance         int64           `json:"balance"`
	PartnerResponse json.RawMessage `json:"partner_response,omitempty"`
}

// Payout reserves the amount on the wallet and records a pending debit keyed by the
// transfer reference in the same unit of work, then asks the partner to send it. A
// confirmed payout settles the reservation and a definitive partner failure releases it.
// An unknown outcome, or a confirmation the ledger could not record, leaves the pending
// debit for ReconcilePending.
func (s *PayoutService) Payout(ctx context.Context, req PayoutRequest) (*PayoutOutcome, error) {
	amount, err := domain.ParseAmount(req.ReceiverAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid receiver amount: %w", err)
	}
	if amount <= 0 {
		return nil, validationf("receiver amount must be positive")
	}
	receiverAmount := domain.ToDecimal(amount)
	senderAmount := receiverAmount
	if strings.TrimSpace(req.SenderAmount) != "" {
		sender, err := domain.ParseAmount(req.SenderAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid sender amount: %w", err)
		}
		senderAmount = domain.ToDecimal(sender)
	}
	if req.WalletID == uuid.Nil {
		return nil, validationf("wallet_id is required")
	}
	if err := requireFields(map[string]string{
		"receiver_account_num":  req.AccountNumber,
		"receiver_account_name": req.AccountName,
	}); err != nil {
		return nil, err
	}

	transferRef := domain.NewReference(domain.RefPrefixTransfer)
	log := zap.L().With(
		zap.String("wallet_id", req.WalletID.String()),
		zap.String("transfer_ref", transferRef),
		zap.Int64("amount", amount),
	)

	pending := &models.Transaction{
		WalletID:  req.WalletID,
		TxID:      transferRef,
		TxRef:     transferRef,
		Amount:    amount,
		Type:      domain.TxTypePayment,
		Direction: domain.DirectionDebit,
		Status:    domain.TxStatusPending,
		Meta:      payoutMeta(req, receiverAmount, senderAmount),
	}
	var wallet models.Wallet
	err = s.store.RunInTx(ctx, func(l repository.Ledger) error {
		locked, err := l.LockWallets(ctx, req.WalletID)
		if err != nil {
			return err
		}
		wallet = locked[req.WalletID]
		if wallet.Available() < amount {
			return fmt.Errorf("wallet %s: %w", wallet.ID, domain.ErrInsufficientFunds)
		}
		if err := l.HoldFunds(ctx, wallet.ID, amount); err != nil {
			return err
		}
		pending.Currency = wallet.Currency
		return l.InsertTransaction(ctx, pending)
	})
	if err != nil {
		observability.IncrementLedgerOperation("payout", outcomeLabel(err))
		return nil, fmt.Errorf("transferring funds: %w", err)
	}

	result, err := s.gateway.InitiatePayout(ctx, gateway.PayoutRequest{
		TransferRef:      transferRef,
		ReceiverAmount:   receiverAmount,
		ReceiverCurrency: defaultString(req.ReceiverCurrency, wallet.Currency),
		SenderAmount:     senderAmount,
		SenderCurrency:   defaultString(req.SenderCurrency, wallet.Currency),
		TransferMethod:   defaultString(req.TransferMethod, "bank"),
		ReceiverType:     defaultString(req.ReceiverType, "personal"),
		AccountNumber:    req.AccountNumber,
		AccountName:      req.AccountName,
		SortCode:         req.SortCode,
		CountryCode:      defaultString(req.CountryCode, "NG"),
	})

	// Finalization must not be skipped because the caller went away after the partner answered.
	ledgerCtx := context.WithoutCancel(ctx)

	var partnerErr *gateway.PartnerError
	switch {
	case err == nil:
		return s.complete(ledgerCtx, log, *pending, wallet.Balance, result), nil
	case errors.As(err, &partnerErr):
		s.fail(ledgerCtx, log, *pending, partnerErr)
		return nil, fmt.Errorf("transferring funds: %w", err)
	default:
		observability.IncrementLedgerOperation("payout", "pending")
		log.Warn("payout outcome unknown; awaiting reconciliation", zap.Error(err))
		return pendingOutcome(*pending, wallet.Balance), nil
	}
}

// complete settles a payout the partner confirmed. When the ledger cannot record it the
// debit stays pending and the caller is told so rather than invited to retry.
func (s *PayoutService) complete(ctx context.Context, log *zap.Logger, pending models.Transaction, balanceBefore int64, result *gateway.PayoutResult) *PayoutOutcome {
	payoutRef := result.PayoutRef
	if payoutRef == "" {
		payoutRef = pending.TxRef
	}
	var balance int64
	err := s.store.RunInTx(ctx, func(l repository.Ledger) error {
		if err := transitionTransaction(ctx, l, pending, domain.TxStatusSuccessful, payoutRef, result.Raw); err != nil {
			return err
		}
		var err error
		balance, err = l.SettleHeldFunds(ctx, pending.WalletID, pending.Amount)
		return err
	})
	if err != nil {
		observability.IncrementLedgerOperation("payout", "finalize_failed")
		log.Error("payout sent by partner but ledger finalization failed; left pending for reconciliation",
			zap.String("payout_ref", payoutRef),
			zap.Error(err),
		)
		return pendingOutcome(pending, balanceBefore)
	}
	observability.IncrementLedgerOperation("payout", "ok")
	log.Info("payout completed", zap.String("payout_ref", payoutRef))

	events.Emit(ctx, s.publisher, zap.L(), events.PayoutCompleted, pending.WalletID.String(), map[string]any{
		"wallet_id":    pending.WalletID,
		"transfer_ref": pending.TxRef,
		"payout_ref":   payoutRef,
		"amount":       pending.Amount,
	})
	return &PayoutOutcome{
		Status:          PayoutStatusSuccessful,
		TransactionID:   pending.ID,
		TransferRef:     pending.TxRef,
		PayoutRef:       payoutRef,
		Amount:          pending.Amount,
		Balance:         balance,
		PartnerResponse: result.Raw,
	}
}

// fail releases the reservation of a payout the partner rejected. If that cannot be
// recorded the debit stays pending and ReconcilePending releases it later.
func (s *PayoutService) fail(ctx context.Context, log *zap.Logger, pending models.Transaction, partnerErr *gateway.PartnerError) {
	err := s.store.RunInTx(ctx, func(l repository.Ledger) error {
		if err := transitionTransaction(ctx, l, pending, domain.TxStatusFailed, "", mustJSON(map[string]any{
			"status":  false,
			"code":    partnerErr.Code,
			"message": partnerErr.Message,
		})); err != nil {
			return err
		}
		return l.ReleaseFunds(ctx, pending.WalletID, pending.Amount)
	})
	if err != nil {
		log.Error("payout rejected by partner but releasing the hold failed; left pending for reconciliation", zap.Error(err))
	}
	observability.IncrementLedgerOperation("payout", "partner_failed")
	log.Warn("payout rejected by partner", zap.String("partner_message", partnerErr.Message))
	events.Emit(ctx, s.publisher, zap.L(), events.PayoutFailed, pending.WalletID.String(), map[string]any{
		"wallet_id":    pending.WalletID,
		"transfer_ref": pending.TxRef,
		"amount":       pending.Amount,
		"reason":       partnerErr.Message,
	})
}

func pendingOutcome(pending models.Transaction, balance int64) *PayoutOutcome {
	return &PayoutOutcome{
		Status:        PayoutStatusPending,
		TransactionID: pending.ID,
		TransferRef:   pending.TxRef,
		Amount:        pending.Amount,
		Balance:       balance,
	}
}

// ReconcilePending polls the partner for payouts still pending after minAge and settles
// or releases their holds. minAge must exceed the partner timeout so in-flight payouts
// are left alone. It returns how many payouts reached a final state.
func (s *PayoutService) ReconcilePending(ctx context.Context, minAge time.Duration, limit int32) (int, error) {
	pending, err := s.store.Ledger().ListPendingPayouts(ctx, s.now().Add(-minAge), limit)
	if err != nil {
		return 0, fmt.Errorf("load pending payouts: %w", err)
	}
	observability.SetPendingPayouts(len(pending))

	resolved := 0
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		log := zap.L().With(
			zap.String("wallet_id", tx.WalletID.String()),
			zap.String("transfer_ref", tx.TxRef),
			zap.Int64("amount", tx.Amount),
		)

		status, err := s.gateway.PayoutStatus(ctx, tx.TxRef)
		if err != nil {
			observability.IncrementPayoutResolution("error")
			log.Warn("payout status lookup failed", zap.Error(err))
			continue
		}

		var next string
		switch status.State {
		case gateway.PayoutStateCompleted:
			next = domain.TxStatusSuccessful
		case gateway.PayoutStateFailed:
			next = domain.TxStatusFailed
		default:
			observability.IncrementPayoutResolution("still_pending")
			continue
		}

		payoutRef := ""
		if next == domain.TxStatusSuccessful {
			payoutRef = status.PayoutRef
		}
		err = s.store.RunInTx(ctx, func(l repository.Ledger) error {
			if err := transitionTransaction(ctx, l, tx, next, payoutRef, status.Raw); err != nil {
				return err
			}
			if next == domain.TxStatusSuccessful {
				_, err := l.SettleHeldFunds(ctx, tx.WalletID, tx.Amount)
				return err
			}
			return l.ReleaseFunds(ctx, tx.WalletID, tx.Amount)
		})
		if errors.Is(err, domain.ErrConflict) {
			observability.IncrementPayoutResolution("conflict")
			log.Info("pending payout already resolved elsewhere")
			continue
		}
		if err != nil {
			observability.IncrementPayoutResolution("error")
			log.Error("failed to resolve pending payout", zap.String("next_status", next), zap.Error(err))
			continue
		}

		resolved++
		observability.IncrementPayoutResolution(next)
		log.Info("pending payout resolved", zap.String("status", next), zap.String("payout_ref", status.PayoutRef))

		eventType := events.PayoutCompleted
		if next == domain.TxStatusFailed {
			eventType = events.PayoutFailed
		}
		events.Emit(ctx, s.publisher, zap.L(), eventType, tx.WalletID.String(), map[string]any{
			"wallet_id":    tx.WalletID,
			"transfer_ref": tx.TxRef,
			"payout_ref":   status.PayoutRef,
			"amount":       tx.Amount,
			"reconciled":   true,
		})
	}
	return resolved, nil
}

func payoutMeta(req PayoutRequest, receiverAmount, senderAmount decimal.Decimal) json.RawMessage {
	return mustJSON(map[string]any{
		"receiver_account_num":  req.AccountNumber,
		"receiver_account_name": req.AccountName,
		"receiver_sort_code":    req.SortCode,
		"receiver_amount":       receiverAmount.StringFixed(domain.MinorUnitExponent),
		"sender_amount":         senderAmount.StringFixed(domain.MinorUnitExponent),
		"meta":                  metaJSON(req.Meta),
	})
}

func defaultString(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
