package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerStore interface {
	Ledger() Ledger
	RunInTx(ctx context.Context, fn func(l Ledger) error) error
}

func newTestWallet(t *testing.T, store ledgerStore, balance int64) models.Wallet {
	t.Helper()
	w := &models.Wallet{
		ID:            uuid.New(),
		BusinessID:    "biz-" + uuid.NewString()[:8],
		Balance:       balance,
		Currency:      domain.CurrencyNGN,
		TxRef:         domain.NewReference(domain.RefPrefixWallet),
		AccountStatus: domain.AccountStatusActive,
	}
	require.NoError(t, store.Ledger().InsertWallet(context.Background(), w))
	return *w
}

// runLedgerContract exercises the behaviour every Ledger implementation must share.
func runLedgerContract(t *testing.T, store ledgerStore) {
	ctx := context.Background()

	t.Run("get_and_find", func(t *testing.T) {
		w := newTestWallet(t, store, 0)
		got, err := store.Ledger().GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, w.TxRef, got.TxRef)

		got, err = store.Ledger().FindWalletByCorrelationKey(ctx, w.TxRef)
		require.NoError(t, err)
		assert.Equal(t, w.ID, got.ID)

		_, err = store.Ledger().GetWallet(ctx, uuid.New())
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		_, err = store.Ledger().FindWalletByCorrelationKey(ctx, "missing-ref")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("duplicate_correlation_key", func(t *testing.T) {
		w := newTestWallet(t, store, 0)
		dup := &models.Wallet{ID: uuid.New(), BusinessID: w.BusinessID, Currency: domain.CurrencyNGN, TxRef: w.TxRef, AccountStatus: domain.AccountStatusActive}
		err := store.Ledger().InsertWallet(ctx, dup)
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})

	t.Run("adjust_balance_floor", func(t *testing.T) {
		w := newTestWallet(t, store, 500)
		zero := int64(0)

		_, err := store.Ledger().AdjustBalance(ctx, w.ID, -501, &zero)
		assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))

		balance, err := store.Ledger().AdjustBalance(ctx, w.ID, -500, &zero)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)

		balance, err = store.Ledger().AdjustBalance(ctx, w.ID, -100, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(-100), balance)

		_, err = store.Ledger().AdjustBalance(ctx, uuid.New(), 1, nil)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("hold_release_settle", func(t *testing.T) {
		w := newTestWallet(t, store, 1_000)
		require.NoError(t, store.Ledger().HoldFunds(ctx, w.ID, 700))

		err := store.Ledger().HoldFunds(ctx, w.ID, 301)
		assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))

		zero := int64(0)
		_, err = store.Ledger().AdjustBalance(ctx, w.ID, -301, &zero)
		assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))

		balance, err := store.Ledger().SettleHeldFunds(ctx, w.ID, 400)
		require.NoError(t, err)
		assert.Equal(t, int64(600), balance)

		require.NoError(t, store.Ledger().ReleaseFunds(ctx, w.ID, 300))
		err = store.Ledger().ReleaseFunds(ctx, w.ID, 1)
		assert.True(t, errors.Is(err, domain.ErrConflict))

		got, err := store.Ledger().GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(600), got.Balance)
		assert.Equal(t, int64(0), got.HeldAmount)
	})

	t.Run("funding_reference_unique", func(t *testing.T) {
		w := newTestWallet(t, store, 0)
		ref := "pay-" + uuid.NewString()
		first := &models.Transaction{WalletID: w.ID, TxID: ref, TxRef: w.TxRef, Amount: 100, Currency: domain.CurrencyNGN,
			Type: domain.TxTypeFunding, Direction: domain.DirectionCredit, Status: domain.TxStatusSuccessful}
		require.NoError(t, store.Ledger().InsertTransaction(ctx, first))

		second := *first
		second.ID = uuid.Nil
		err := store.Ledger().InsertTransaction(ctx, &second)
		assert.True(t, errors.Is(err, domain.ErrConflict))

		found, err := store.Ledger().FindFundingTransaction(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)

		payment := &models.Transaction{WalletID: w.ID, TxID: ref, TxRef: w.TxRef, Amount: 100, Currency: domain.CurrencyNGN,
			Type: domain.TxTypePayment, Direction: domain.DirectionDebit, Status: domain.TxStatusSuccessful}
		require.NoError(t, store.Ledger().InsertTransaction(ctx, payment))
	})

	t.Run("rollback_discards_writes", func(t *testing.T) {
		w := newTestWallet(t, store, 1_000)
		boom := errors.New("boom")
		err := store.RunInTx(ctx, func(l Ledger) error {
			if _, err := l.AdjustBalance(ctx, w.ID, -400, nil); err != nil {
				return err
			}
			if err := l.InsertTransaction(ctx, &models.Transaction{WalletID: w.ID, TxID: "tx-rollback", Amount: 400,
				Currency: domain.CurrencyNGN, Type: domain.TxTypePayment, Direction: domain.DirectionDebit,
				Status: domain.TxStatusSuccessful}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := store.Ledger().GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1_000), got.Balance)
		txs, err := store.Ledger().ListTransactionsByWallet(ctx, w.ID, Page{})
		require.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("lock_wallets_missing", func(t *testing.T) {
		w := newTestWallet(t, store, 0)
		err := store.RunInTx(ctx, func(l Ledger) error {
			_, err := l.LockWallets(ctx, w.ID, uuid.New())
			return err
		})
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		err = store.RunInTx(ctx, func(l Ledger) error {
			locked, err := l.LockWallets(ctx, w.ID, w.ID)
			if err != nil {
				return err
			}
			assert.Len(t, locked, 1)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("pending_payout_status", func(t *testing.T) {
		w := newTestWallet(t, store, 1_000)
		pending := &models.Transaction{WalletID: w.ID, TxID: "TRF_" + uuid.NewString(), TxRef: "TRF_x", Amount: 250,
			Currency: domain.CurrencyNGN, Type: domain.TxTypePayment, Direction: domain.DirectionDebit,
			Status: domain.TxStatusPending, Meta: json.RawMessage(`{"kind":"payout"}`)}
		require.NoError(t, store.Ledger().InsertTransaction(ctx, pending))

		list, err := store.Ledger().ListPendingPayouts(ctx, time.Now().Add(time.Minute), 100)
		require.NoError(t, err)
		var ids []uuid.UUID
		for _, tx := range list {
			ids = append(ids, tx.ID)
		}
		assert.Contains(t, ids, pending.ID)

		require.NoError(t, store.Ledger().UpdateTransactionStatus(ctx, pending.ID, TransactionUpdate{
			From: domain.TxStatusPending, To: domain.TxStatusFailed, GatewayResponse: json.RawMessage(`{"status":"failed"}`),
		}))
		err = store.Ledger().UpdateTransactionStatus(ctx, pending.ID, TransactionUpdate{From: domain.TxStatusPending, To: domain.TxStatusSuccessful})
		assert.True(t, errors.Is(err, domain.ErrConflict))

		got, err := store.Ledger().GetTransaction(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TxStatusFailed, got.Status)
		assert.Equal(t, pending.TxID, got.TxID)
		assert.JSONEq(t, `{"status":"failed"}`, string(got.GatewayResponse))
		assert.JSONEq(t, `{"kind":"payout"}`, string(got.Meta))
	})

	t.Run("discrepancies", func(t *testing.T) {
		balanced := newTestWallet(t, store, 0)
		require.NoError(t, store.RunInTx(ctx, func(l Ledger) error {
			if _, err := l.AdjustBalance(ctx, balanced.ID, 300, nil); err != nil {
				return err
			}
			return l.InsertTransaction(ctx, &models.Transaction{WalletID: balanced.ID, TxID: "fund-" + uuid.NewString(),
				Amount: 300, Currency: domain.CurrencyNGN, Type: domain.TxTypeFunding, Direction: domain.DirectionCredit,
				Status: domain.TxStatusSuccessful})
		}))
		drifted := newTestWallet(t, store, 42)
		orphanHold := newTestWallet(t, store, 0)
		require.NoError(t, store.RunInTx(ctx, func(l Ledger) error {
			if _, err := l.AdjustBalance(ctx, orphanHold.ID, 500, nil); err != nil {
				return err
			}
			if err := l.InsertTransaction(ctx, &models.Transaction{WalletID: orphanHold.ID, TxID: "fund-" + uuid.NewString(),
				Amount: 500, Currency: domain.CurrencyNGN, Type: domain.TxTypeFunding, Direction: domain.DirectionCredit,
				Status: domain.TxStatusSuccessful}); err != nil {
				return err
			}
			return l.HoldFunds(ctx, orphanHold.ID, 200)
		}))

		found, err := store.Ledger().LedgerDiscrepancies(ctx)
		require.NoError(t, err)
		byID := map[uuid.UUID]models.LedgerDiscrepancy{}
		for _, d := range found {
			byID[d.WalletID] = d
		}
		assert.NotContains(t, byID, balanced.ID)
		require.Contains(t, byID, drifted.ID)
		assert.Equal(t, int64(42), byID[drifted.ID].Balance)
		assert.Equal(t, int64(0), byID[drifted.ID].LedgerSum)

		require.Contains(t, byID, orphanHold.ID)
		assert.Equal(t, byID[orphanHold.ID].Balance, byID[orphanHold.ID].LedgerSum)
		assert.Equal(t, int64(200), byID[orphanHold.ID].HeldAmount)
		assert.Zero(t, byID[orphanHold.ID].PendingSum)
	})
}
