package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/events"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/notify"
	"github.com/ayo6706/logistics-wallet/internal/observability"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

const (
	EventPayinBankTransfer = "payin_bank_transfer"
	payStatusActivated     = "activated"
)

// WebhookState is the furthest step an inbound event reached.
type WebhookState string

const (
	WebhookReceived       WebhookState = "RECEIVED"
	WebhookVerified       WebhookState = "VERIFIED"
	WebhookWalletResolved WebhookState = "WALLET_RESOLVED"
	WebhookCredited       WebhookState = "CREDITED"
	WebhookNotified       WebhookState = "NOTIFIED"
)

const (
	WebhookOutcomeCredited  = "credited"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
)

// WebhookService ingests partner funding webhooks and credits wallets exactly once.
type WebhookService struct {
	store     LedgerStore
	notifier  notify.Notifier
	publisher events.Publisher
	sharedKey []byte
}

func NewWebhookService(store LedgerStore, sharedKey string, notifier notify.Notifier, publisher events.Publisher) *WebhookService {
	if notifier == nil {
		notifier = notify.NewLogNotifier(zap.L())
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &WebhookService{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		sharedKey: []byte(sharedKey),
	}
}

// BankTransferEvent is the partner's funding notification. pay_amount may arrive as a
// JSON number or string.
type BankTransferEvent struct {
	Event string           `json:"event"`
	Data  BankTransferData `json:"data"`
}

type BankTransferData struct {
	PayRef          string          `json:"pay_ref"`
	PayExtRef       string          `json:"pay_ext_ref"`
	PayStatus       string          `json:"pay_status"`
	PayAmount       decimal.Decimal `json:"pay_amount"`
	HolderCurrency  string          `json:"holder_currency"`
	HolderFirstName string          `json:"holder_first_name"`
	Narration       string          `json:"narration"`
}

// WebhookResult reports how far the event progressed.
type WebhookResult struct {
	State         WebhookState `json:"state"`
	Outcome       string       `json:"outcome"`
	WalletID      uuid.UUID    `json:"wallet_id,omitempty"`
	TransactionID uuid.UUID    `json:"transaction_id,omitempty"`
	Balance       int64        `json:"balance,omitempty"`
}

// Verify compares the presented shared key in constant time.
func (s *WebhookService) Verify(presented string) bool {
	if len(s.sharedKey) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), s.sharedKey) == 1
}

// HandleBankTransfer runs RECEIVED -> VERIFIED -> WALLET_RESOLVED -> CREDITED -> NOTIFIED.
// Any error returned happened before CREDITED and must not be acknowledged with a 2xx.
func (s *WebhookService) HandleBankTransfer(ctx context.Context, payload []byte, presentedKey string) (*WebhookResult, error) {
	res := &WebhookResult{State: WebhookReceived}
	if !s.Verify(presentedKey) {
		observability.IncrementWebhookEvent("unknown", "unauthorized")
		return nil, ErrInvalidSignature
	}
	res.State = WebhookVerified

	var evt BankTransferEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		observability.IncrementWebhookEvent("unknown", "invalid")
		return nil, validationf("invalid webhook payload: %v", err)
	}
	if strings.TrimSpace(evt.Event) == "" {
		observability.IncrementWebhookEvent("unknown", "invalid")
		return nil, validationf("event is required")
	}
	if evt.Event != EventPayinBankTransfer {
		observability.IncrementWebhookEvent(evt.Event, WebhookOutcomeIgnored)
		zap.L().Info("webhook event ignored", zap.String("event", evt.Event))
		res.Outcome = WebhookOutcomeIgnored
		return res, nil
	}

	data := evt.Data
	data.PayRef = strings.TrimSpace(data.PayRef)
	data.PayExtRef = strings.TrimSpace(data.PayExtRef)
	if data.PayExtRef == "" {
		observability.IncrementWebhookEvent(evt.Event, "invalid")
		return nil, validationf("data.pay_ext_ref is required")
	}
	log := zap.L().With(
		zap.String("event", evt.Event),
		zap.String("pay_ref", data.PayRef),
		zap.String("pay_ext_ref", data.PayExtRef),
	)

	wallet, err := s.store.Ledger().FindWalletByCorrelationKey(ctx, data.PayExtRef)
	if err != nil {
		observability.IncrementWebhookEvent(evt.Event, "wallet_not_found")
		log.Error("webhook references unknown wallet; partner and ledger out of sync", zap.Error(err))
		return nil, fmt.Errorf("resolving wallet for %s: %w", data.PayExtRef, err)
	}
	res.State = WebhookWalletResolved
	res.WalletID = wallet.ID

	if !strings.EqualFold(strings.TrimSpace(data.PayStatus), payStatusActivated) {
		observability.IncrementWebhookEvent(evt.Event, WebhookOutcomeIgnored)
		log.Info("funding event not activated; no credit", zap.String("pay_status", data.PayStatus))
		res.Outcome = WebhookOutcomeIgnored
		return res, nil
	}
	if data.PayRef == "" {
		observability.IncrementWebhookEvent(evt.Event, "invalid")
		return nil, validationf("data.pay_ref is required")
	}
	amount, err := domain.FromDecimal(data.PayAmount)
	if err != nil {
		observability.IncrementWebhookEvent(evt.Event, "invalid")
		return nil, fmt.Errorf("invalid pay_amount: %w", err)
	}
	if amount <= 0 {
		observability.IncrementWebhookEvent(evt.Event, "invalid")
		return nil, validationf("pay_amount must be positive")
	}
	if c := strings.TrimSpace(data.HolderCurrency); c != "" && !strings.EqualFold(c, wallet.Currency) {
		observability.IncrementWebhookEvent(evt.Event, "invalid")
		return nil, validationf("holder_currency %s does not match wallet currency %s", c, wallet.Currency)
	}

	credited, err := s.credit(ctx, wallet, data, amount, payload)
	if errors.Is(err, domain.ErrConflict) {
		// Lost the insert race against a concurrent redelivery.
		credited, err = s.existingCredit(ctx, wallet, data.PayRef)
	}
	if err != nil {
		observability.IncrementWebhookEvent(evt.Event, "error")
		log.Error("webhook credit failed", zap.Error(err))
		return nil, fmt.Errorf("crediting wallet %s: %w", wallet.ID, err)
	}
	res.State = WebhookCredited
	res.TransactionID = credited.tx.ID
	res.Balance = credited.balance
	if credited.duplicate {
		observability.IncrementWebhookEvent(evt.Event, WebhookOutcomeDuplicate)
		log.Info("funding event already processed")
		res.Outcome = WebhookOutcomeDuplicate
		return res, nil
	}
	res.Outcome = WebhookOutcomeCredited
	observability.IncrementWebhookEvent(evt.Event, WebhookOutcomeCredited)
	observability.IncrementLedgerOperation("funding", "ok")
	log.Info("wallet funded", zap.String("wallet_id", wallet.ID.String()), zap.Int64("amount", amount))

	events.Emit(ctx, s.publisher, zap.L(), events.WalletFunded, wallet.ID.String(), map[string]any{
		"wallet_id": wallet.ID,
		"pay_ref":   data.PayRef,
		"amount":    amount,
		"currency":  wallet.Currency,
		"balance":   credited.balance,
	})

	name := strings.TrimSpace(data.HolderFirstName)
	if name == "" {
		name = wallet.FirstName
	}
	alert := notify.FundingAlert{
		Email:         wallet.Email,
		Name:          name,
		Narration:     data.Narration,
		Amount:        domain.ToDecimal(amount),
		TransactionID: data.PayRef,
	}
	if err := s.notifier.SendFundingAlert(ctx, alert); err != nil {
		log.Warn("funding alert failed", zap.Error(err))
		return res, nil
	}
	res.State = WebhookNotified
	return res, nil
}

type creditResult struct {
	tx        models.Transaction
	balance   int64
	duplicate bool
}

func (s *WebhookService) credit(ctx context.Context, wallet models.Wallet, data BankTransferData, amount int64, payload []byte) (creditResult, error) {
	var out creditResult
	err := s.store.RunInTx(ctx, func(l repository.Ledger) error {
		locked, err := l.LockWallets(ctx, wallet.ID)
		if err != nil {
			return err
		}
		existing, err := l.FindFundingTransaction(ctx, data.PayRef)
		if err == nil {
			if existing.WalletID != wallet.ID {
				return fmt.Errorf("%w: pay_ref %s already credited to wallet %s", domain.ErrValidation, data.PayRef, existing.WalletID)
			}
			out = creditResult{tx: existing, balance: locked[wallet.ID].Balance, duplicate: true}
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		balance, err := l.AdjustBalance(ctx, wallet.ID, amount, nil)
		if err != nil {
			return err
		}
		tx := models.Transaction{
			WalletID:  wallet.ID,
			TxID:      data.PayRef,
			TxRef:     wallet.TxRef,
			Amount:    amount,
			Currency:  wallet.Currency,
			Type:      domain.TxTypeFunding,
			Direction: domain.DirectionCredit,
			Status:    domain.TxStatusSuccessful,
			Meta: mustJSON(map[string]string{
				"narration":         data.Narration,
				"holder_first_name": data.HolderFirstName,
				"pay_status":        data.PayStatus,
			}),
			GatewayResponse: rawOrNil(payload),
		}
		if err := l.InsertTransaction(ctx, &tx); err != nil {
			return err
		}
		out = creditResult{tx: tx, balance: balance}
		return nil
	})
	return out, err
}

func (s *WebhookService) existingCredit(ctx context.Context, wallet models.Wallet, payRef string) (creditResult, error) {
	tx, err := s.store.Ledger().FindFundingTransaction(ctx, payRef)
	if err != nil {
		return creditResult{}, err
	}
	if tx.WalletID != wallet.ID {
		return creditResult{}, fmt.Errorf("%w: pay_ref %s already credited to wallet %s", domain.ErrValidation, payRef, tx.WalletID)
	}
	current, err := s.store.Ledger().GetWallet(ctx, wallet.ID)
	if err != nil {
		return creditResult{}, err
	}
	return creditResult{tx: tx, balance: current.Balance, duplicate: true}, nil
}

func rawOrNil(payload []byte) json.RawMessage {
	if !json.Valid(payload) {
		return nil
	}
	return json.RawMessage(payload)
}
