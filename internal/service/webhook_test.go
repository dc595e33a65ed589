package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSharedKey = "shared-secret"

func newWebhookFixture(t *testing.T) (*WebhookService, *repository.MemoryStore, *recordingNotifier, models.Wallet) {
	t.Helper()
	store := repository.NewMemoryStore()
	notifier := &recordingNotifier{}
	w := seedWallet(t, store, 0)
	return NewWebhookService(store, testSharedKey, notifier, nil), store, notifier, w
}

func bankTransferPayload(extRef, payRef, status, amount string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payin_bank_transfer",
		"data": {
			"pay_ref": %q,
			"pay_ext_ref": %q,
			"pay_status": %q,
			"pay_amount": %s,
			"holder_currency": "NGN",
			"holder_first_name": "Ada",
			"narration": "top up"
		}
	}`, payRef, extRef, status, amount))
}

func TestHandleBankTransferCreditsOnce(t *testing.T) {
	svc, store, notifier, w := newWebhookFixture(t)
	ctx := context.Background()
	payload := bankTransferPayload(w.TxRef, "PAY-001", "activated", "2000")

	res, err := svc.HandleBankTransfer(ctx, payload, testSharedKey)
	require.NoError(t, err)
	assert.Equal(t, WebhookNotified, res.State)
	assert.Equal(t, WebhookOutcomeCredited, res.Outcome)
	assert.Equal(t, w.ID, res.WalletID)
	assert.Equal(t, int64(200_000), res.Balance)
	assert.Equal(t, int64(200_000), walletOf(t, store, w.ID).Balance)

	tx, err := store.Ledger().FindFundingTransaction(ctx, "PAY-001")
	require.NoError(t, err)
	assert.Equal(t, res.TransactionID, tx.ID)
	assert.Equal(t, domain.TxTypeFunding, tx.Type)
	assert.Equal(t, domain.DirectionCredit, tx.Direction)
	assert.Equal(t, int64(200_000), tx.Amount)
	assert.JSONEq(t, string(payload), string(tx.GatewayResponse))

	require.Equal(t, 1, notifier.count())
	alert := notifier.alerts[0]
	assert.Equal(t, "ada@acme.test", alert.Email)
	assert.Equal(t, "Ada", alert.Name)
	assert.Equal(t, "top up", alert.Narration)
	assert.Equal(t, "PAY-001", alert.TransactionID)
	assert.Equal(t, "2000", alert.Amount.String())

	again, err := svc.HandleBankTransfer(ctx, payload, testSharedKey)
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeDuplicate, again.Outcome)
	assert.Equal(t, WebhookCredited, again.State)
	assert.Equal(t, tx.ID, again.TransactionID)
	assert.Equal(t, int64(200_000), walletOf(t, store, w.ID).Balance)
	assert.Equal(t, 1, txCount(t, store, w.ID))
	assert.Equal(t, 1, notifier.count())
	requireBalanced(t, store)
}

func TestHandleBankTransferStringAmount(t *testing.T) {
	svc, store, _, w := newWebhookFixture(t)

	res, err := svc.HandleBankTransfer(context.Background(), bankTransferPayload(w.TxRef, "PAY-002", "ACTIVATED", `"150.75"`), testSharedKey)
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeCredited, res.Outcome)
	assert.Equal(t, int64(15_075), walletOf(t, store, w.ID).Balance)
}

func TestHandleBankTransferRejectsBadKey(t *testing.T) {
	svc, store, notifier, w := newWebhookFixture(t)
	payload := bankTransferPayload(w.TxRef, "PAY-003", "activated", "10")

	_, err := svc.HandleBankTransfer(context.Background(), payload, "wrong")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
	_, err = svc.HandleBankTransfer(context.Background(), payload, "")
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	unconfigured := NewWebhookService(store, "", notifier, nil)
	_, err = unconfigured.HandleBankTransfer(context.Background(), payload, "")
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	assert.Zero(t, walletOf(t, store, w.ID).Balance)
	assert.Zero(t, notifier.count())
}

func TestHandleBankTransferUnknownWallet(t *testing.T) {
	svc, _, notifier, _ := newWebhookFixture(t)

	_, err := svc.HandleBankTransfer(context.Background(), bankTransferPayload("WAL_UNKNOWN", "PAY-004", "activated", "10"), testSharedKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Zero(t, notifier.count())
}

func TestHandleBankTransferIgnoredEvents(t *testing.T) {
	svc, store, notifier, w := newWebhookFixture(t)
	ctx := context.Background()

	res, err := svc.HandleBankTransfer(ctx, bankTransferPayload(w.TxRef, "PAY-005", "pending", "10"), testSharedKey)
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeIgnored, res.Outcome)
	assert.Equal(t, WebhookWalletResolved, res.State)

	res, err = svc.HandleBankTransfer(ctx, []byte(`{"event":"payout_status","data":{}}`), testSharedKey)
	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeIgnored, res.Outcome)
	assert.Equal(t, WebhookVerified, res.State)

	assert.Zero(t, walletOf(t, store, w.ID).Balance)
	assert.Zero(t, txCount(t, store, w.ID))
	assert.Zero(t, notifier.count())
}

func TestHandleBankTransferInvalidPayloads(t *testing.T) {
	svc, store, _, w := newWebhookFixture(t)

	cases := map[string][]byte{
		"not_json":          []byte(`{`),
		"no_event":          []byte(`{"data":{}}`),
		"no_ext_ref":        bankTransferPayload("", "PAY-006", "activated", "10"),
		"no_pay_ref":        bankTransferPayload(w.TxRef, "", "activated", "10"),
		"zero_amount":       bankTransferPayload(w.TxRef, "PAY-007", "activated", "0"),
		"sub_kobo":          bankTransferPayload(w.TxRef, "PAY-008", "activated", "1.005"),
		"currency_mismatch": []byte(fmt.Sprintf(`{"event":"payin_bank_transfer","data":{"pay_ref":"PAY-009","pay_ext_ref":%q,"pay_status":"activated","pay_amount":10,"holder_currency":"USD"}}`, w.TxRef)),
	}
	for name, payload := range cases {
		payload := payload
		t.Run(name, func(t *testing.T) {
			_, err := svc.HandleBankTransfer(context.Background(), payload, testSharedKey)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), err.Error())
		})
	}
	assert.Zero(t, walletOf(t, store, w.ID).Balance)
}

func TestHandleBankTransferNotifierFailureStillCredits(t *testing.T) {
	svc, store, notifier, w := newWebhookFixture(t)
	notifier.err = errors.New("smtp down")

	res, err := svc.HandleBankTransfer(context.Background(), bankTransferPayload(w.TxRef, "PAY-010", "activated", "50"), testSharedKey)
	require.NoError(t, err)
	assert.Equal(t, WebhookCredited, res.State)
	assert.Equal(t, WebhookOutcomeCredited, res.Outcome)
	assert.Equal(t, int64(5_000), walletOf(t, store, w.ID).Balance)
	assert.Equal(t, 1, notifier.count())
}

func TestHandleBankTransferPayRefBelongsToAnotherWallet(t *testing.T) {
	svc, store, _, w := newWebhookFixture(t)
	other := seedWallet(t, store, 0)
	ctx := context.Background()

	_, err := svc.HandleBankTransfer(ctx, bankTransferPayload(w.TxRef, "PAY-011", "activated", "10"), testSharedKey)
	require.NoError(t, err)

	_, err = svc.HandleBankTransfer(ctx, bankTransferPayload(other.TxRef, "PAY-011", "activated", "10"), testSharedKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Zero(t, walletOf(t, store, other.ID).Balance)
}

func TestHandleBankTransferConcurrentRedelivery(t *testing.T) {
	svc, store, notifier, w := newWebhookFixture(t)
	payload := bankTransferPayload(w.TxRef, "PAY-012", "activated", "1000")

	const deliveries = 8
	var wg sync.WaitGroup
	outcomes := make([]string, deliveries)
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.HandleBankTransfer(context.Background(), payload, testSharedKey)
			errs[i] = err
			if res != nil {
				outcomes[i] = res.Outcome
			}
		}(i)
	}
	wg.Wait()

	credited := 0
	for i := range outcomes {
		require.NoError(t, errs[i])
		if outcomes[i] == WebhookOutcomeCredited {
			credited++
		}
	}
	assert.Equal(t, 1, credited)
	assert.Equal(t, int64(100_000), walletOf(t, store, w.ID).Balance)
	assert.Equal(t, 1, txCount(t, store, w.ID))
	assert.Equal(t, 1, notifier.count())
	requireBalanced(t, store)
}
