package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoutes = map[string][]string{
	"shipping":  {"shipping", "banking"},
	"filling":   {"filling", "banking"},
	"packaging": {"packaging", "banking"},
}

type paymentFixture struct {
	svc      *PaymentService
	store    *repository.MemoryStore
	shipping uuid.UUID
	banking  uuid.UUID
}

func newPaymentFixture(t *testing.T) paymentFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	shipping := seedWallet(t, store, 0)
	banking := seedWallet(t, store, 0)
	routes := NewFeeRoutes(testRoutes, map[string]uuid.UUID{
		"shipping": shipping.ID,
		"banking":  banking.ID,
	})
	return paymentFixture{
		svc:      NewPaymentService(store, routes, nil),
		store:    store,
		shipping: shipping.ID,
		banking:  banking.ID,
	}
}

func legacyPayment(t *testing.T, svc *PaymentService, walletID uuid.UUID, service string, amounts ...int64) PaymentRequest {
	t.Helper()
	splits, err := svc.Routes().SplitsFromAmounts(service, amounts)
	require.NoError(t, err)
	return PaymentRequest{WalletID: walletID, Service: service, Splits: splits, Meta: json.RawMessage(`{"shipment":"SHP-1"}`)}
}

func TestProcessPaymentSplitsAcrossServiceWallets(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payer := seedWallet(t, f.store, 500_000)

	res, err := f.svc.ProcessPayment(ctx, legacyPayment(t, f.svc, payer.ID, "shipping", 100_000, 20_000))
	require.NoError(t, err)

	assert.Equal(t, int64(120_000), res.Total)
	assert.Equal(t, int64(380_000), res.PayerBalance)
	assert.Equal(t, int64(380_000), walletOf(t, f.store, payer.ID).Balance)
	assert.Equal(t, int64(100_000), walletOf(t, f.store, f.shipping).Balance)
	assert.Equal(t, int64(20_000), walletOf(t, f.store, f.banking).Balance)

	txs, err := f.store.Ledger().ListTransactionsByTxID(ctx, res.TxID)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	byWallet := map[uuid.UUID]int64{}
	for _, tx := range txs {
		assert.Equal(t, domain.TxTypePayment, tx.Type)
		assert.Equal(t, domain.TxStatusSuccessful, tx.Status)
		assert.Equal(t, payer.TxRef, tx.TxRef)
		byWallet[tx.WalletID] = tx.SignedAmount()
	}
	assert.Equal(t, int64(-120_000), byWallet[payer.ID])
	assert.Equal(t, int64(100_000), byWallet[f.shipping])
	assert.Equal(t, int64(20_000), byWallet[f.banking])
	requireBalanced(t, f.store)
}

func TestProcessPaymentNamedSplits(t *testing.T) {
	f := newPaymentFixture(t)
	payer := seedWallet(t, f.store, 100_000)

	res, err := f.svc.ProcessPayment(context.Background(), PaymentRequest{
		WalletID: payer.ID,
		Service:  "Shipping",
		Splits:   []Split{{Role: "banking", Amount: 5_000}, {Role: "shipping", Amount: 10_000}},
	})
	require.NoError(t, err)
	require.Len(t, res.Legs, 2)
	assert.Equal(t, "shipping", res.Legs[0].Role)
	assert.Equal(t, "banking", res.Legs[1].Role)
	assert.Equal(t, int64(10_000), walletOf(t, f.store, f.shipping).Balance)
	assert.Equal(t, int64(5_000), walletOf(t, f.store, f.banking).Balance)
}

func TestProcessPaymentMissingDestinationIsAtomic(t *testing.T) {
	store := repository.NewMemoryStore()
	shipping := seedWallet(t, store, 0)
	routes := NewFeeRoutes(testRoutes, map[string]uuid.UUID{
		"shipping": shipping.ID,
		"banking":  uuid.New(), // configured but never created
	})
	svc := NewPaymentService(store, routes, nil)
	payer := seedWallet(t, store, 500_000)
	before := txCount(t, store, payer.ID)

	_, err := svc.ProcessPayment(context.Background(), legacyPayment(t, svc, payer.ID, "shipping", 100_000, 20_000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "shipping wallet not found")

	assert.Equal(t, int64(500_000), walletOf(t, store, payer.ID).Balance)
	assert.Equal(t, int64(0), walletOf(t, store, shipping.ID).Balance)
	assert.Equal(t, before, txCount(t, store, payer.ID))
	assert.Zero(t, txCount(t, store, shipping.ID))
}

func TestProcessPaymentUnconfiguredRole(t *testing.T) {
	f := newPaymentFixture(t)
	payer := seedWallet(t, f.store, 500_000)

	_, err := f.svc.ProcessPayment(context.Background(), legacyPayment(t, f.svc, payer.ID, "filling", 100, 100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "filling wallet not found")
	assert.Equal(t, int64(500_000), walletOf(t, f.store, payer.ID).Balance)
}

func TestProcessPaymentRejectsOverflowingTotal(t *testing.T) {
	store := repository.NewMemoryStore()
	shipping := seedWallet(t, store, 0)
	insurance := seedWallet(t, store, 0)
	banking := seedWallet(t, store, 0)
	routes := NewFeeRoutes(map[string][]string{"shipping": {"shipping", "insurance", "banking"}}, map[string]uuid.UUID{
		"shipping":  shipping.ID,
		"insurance": insurance.ID,
		"banking":   banking.ID,
	})
	svc := NewPaymentService(store, routes, nil)
	payer := seedWallet(t, store, 100)
	before := txCount(t, store, payer.ID)

	_, err := svc.ProcessPayment(context.Background(), legacyPayment(t, svc, payer.ID, "shipping", math.MaxInt64, math.MaxInt64, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	assert.Equal(t, int64(100), walletOf(t, store, payer.ID).Balance)
	for _, id := range []uuid.UUID{shipping.ID, insurance.ID, banking.ID} {
		assert.Zero(t, walletOf(t, store, id).Balance)
		assert.Zero(t, txCount(t, store, id))
	}
	assert.Equal(t, before, txCount(t, store, payer.ID))
	requireBalanced(t, store)
}

func TestProcessPaymentFundsBoundary(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payer := seedWallet(t, f.store, 50_000)
	before := txCount(t, f.store, payer.ID)

	_, err := f.svc.ProcessPayment(ctx, legacyPayment(t, f.svc, payer.ID, "shipping", 40_000, 10_001))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))
	assert.Equal(t, int64(50_000), walletOf(t, f.store, payer.ID).Balance)
	assert.Equal(t, before, txCount(t, f.store, payer.ID))

	_, err = f.svc.ProcessPayment(ctx, legacyPayment(t, f.svc, payer.ID, "shipping", 40_000, 10_000))
	require.NoError(t, err)
	assert.Equal(t, int64(0), walletOf(t, f.store, payer.ID).Balance)
	requireBalanced(t, f.store)
}

func TestProcessPaymentRespectsHeldFunds(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payer := seedWallet(t, f.store, 50_000)
	require.NoError(t, f.store.Ledger().HoldFunds(ctx, payer.ID, 30_000))

	_, err := f.svc.ProcessPayment(ctx, legacyPayment(t, f.svc, payer.ID, "shipping", 25_000, 0))
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))
}

func TestProcessPaymentConcurrentOverspend(t *testing.T) {
	f := newPaymentFixture(t)
	payer := seedWallet(t, f.store, 100_000)

	req := legacyPayment(t, f.svc, payer.ID, "shipping", 50_000, 10_000)
	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ProcessPayment(context.Background(), req)
		}(i)
	}
	wg.Wait()

	successes, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrInsufficientFunds):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(40_000), walletOf(t, f.store, payer.ID).Balance)
	requireBalanced(t, f.store)
}

func TestProcessPaymentValidation(t *testing.T) {
	f := newPaymentFixture(t)
	payer := seedWallet(t, f.store, 100_000)

	_, err := f.svc.Routes().SplitsFromAmounts("shipping", []int64{100})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.svc.Routes().SplitsFromAmounts("courier", []int64{100, 100})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	cases := []struct {
		name string
		req  PaymentRequest
	}{
		{name: "no_wallet", req: PaymentRequest{Service: "shipping", Splits: []Split{{Role: "shipping", Amount: 1}}}},
		{name: "no_service", req: PaymentRequest{WalletID: payer.ID, Splits: []Split{{Role: "shipping", Amount: 1}}}},
		{name: "no_splits", req: PaymentRequest{WalletID: payer.ID, Service: "shipping"}},
		{name: "foreign_role", req: PaymentRequest{WalletID: payer.ID, Service: "shipping", Splits: []Split{{Role: "filling", Amount: 1}}}},
		{name: "duplicate_role", req: PaymentRequest{WalletID: payer.ID, Service: "shipping", Splits: []Split{{Role: "shipping", Amount: 1}, {Role: "shipping", Amount: 2}}}},
		{name: "negative", req: PaymentRequest{WalletID: payer.ID, Service: "shipping", Splits: []Split{{Role: "shipping", Amount: -1}}}},
		{name: "zero_total", req: PaymentRequest{WalletID: payer.ID, Service: "shipping", Splits: []Split{{Role: "shipping", Amount: 0}}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.ProcessPayment(context.Background(), tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), err.Error())
		})
	}
	assert.Equal(t, int64(100_000), walletOf(t, f.store, payer.ID).Balance)
}

func TestProcessPaymentUnknownPayer(t *testing.T) {
	f := newPaymentFixture(t)
	_, err := f.svc.ProcessPayment(context.Background(), legacyPayment(t, f.svc, uuid.New(), "shipping", 1, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.NotContains(t, err.Error(), "shipping wallet not found")
}
