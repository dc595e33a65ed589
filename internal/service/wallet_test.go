package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/gateway"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOpeningDebt = 2_000_000

func newWalletFixture(t *testing.T, plan string) (*WalletService, *repository.MemoryStore, *stubGateway) {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddBusiness(models.Business{ID: "biz-1", Name: "Acme Logistics"})
	store.AddUser(models.User{ID: "user-1", Email: "ada@acme.test", Plan: plan})
	gw := &stubGateway{}
	return NewWalletService(store, store.Directory(), gw, testOpeningDebt), store, gw
}

func validCreateRequest() CreateWalletRequest {
	return CreateWalletRequest{
		BusinessID: "biz-1",
		Email:      "Ada@Acme.test",
		Phone:      "+2348000000000",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		LegalID:    "22200011122",
		Narration:  "Acme main wallet",
		Primary:    true,
	}
}

func TestCreateWalletFreePlan(t *testing.T) {
	svc, store, gw := newWalletFixture(t, domain.PlanFree)
	ctx := context.Background()

	w, err := svc.CreateWallet(ctx, validCreateRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(0), w.Balance)
	assert.Equal(t, domain.CurrencyNGN, w.Currency)
	assert.Equal(t, domain.AccountStatusActive, w.AccountStatus)
	assert.Equal(t, "ada@acme.test", w.Email)
	assert.Equal(t, "CUS-ada@acme.test", w.CustomerRef)
	assert.True(t, w.Primary)
	assert.NotEmpty(t, w.AccountNumber)
	assert.Equal(t, w.TxRef, gw.lastIssue.ExternalRef)
	assert.Equal(t, "22200011122", gw.lastIssue.HolderLegalNumber)
	assert.Equal(t, "Ada Lovelace", gw.lastIssue.AlternateName)
	assert.Equal(t, defaultBankHint, gw.lastIssue.BankHint)

	stored, err := svc.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.TxRef, stored.TxRef)
	assert.Zero(t, txCount(t, store, w.ID))
	requireBalanced(t, store)
}

func TestCreateWalletPaidPlanRecordsOpeningDebt(t *testing.T) {
	svc, store, _ := newWalletFixture(t, domain.PlanPaid)
	ctx := context.Background()

	w, err := svc.CreateWallet(ctx, validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(-testOpeningDebt), w.Balance)

	txs, err := svc.ListTransactions(ctx, w.ID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxTypeOpeningBalance, txs[0].Type)
	assert.Equal(t, domain.DirectionDebit, txs[0].Direction)
	assert.Equal(t, int64(testOpeningDebt), txs[0].Amount)
	assert.Equal(t, domain.TxStatusSuccessful, txs[0].Status)
	requireBalanced(t, store)
}

func TestCreateWalletUnknownBusiness(t *testing.T) {
	svc, _, gw := newWalletFixture(t, domain.PlanFree)
	req := validCreateRequest()
	req.BusinessID = "missing"

	_, err := svc.CreateWallet(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Zero(t, gw.registerCalls)
}

func TestCreateWalletUnknownUserStopsBeforePartner(t *testing.T) {
	svc, _, gw := newWalletFixture(t, domain.PlanFree)
	req := validCreateRequest()
	req.Email = "nobody@acme.test"

	_, err := svc.CreateWallet(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Zero(t, gw.registerCalls)
	assert.Zero(t, gw.issueCalls)
}

func TestCreateWalletPartnerFailurePersistsNothing(t *testing.T) {
	cases := []struct {
		name  string
		setup func(gw *stubGateway)
	}{
		{name: "register", setup: func(gw *stubGateway) {
			gw.registerErr = &gateway.PartnerError{Op: "register_customer", Message: "customer_phone is invalid"}
		}},
		{name: "issue", setup: func(gw *stubGateway) {
			gw.issueErr = &gateway.PartnerError{Op: "issue_collection_account", Message: "bvn mismatch"}
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			svc, _, gw := newWalletFixture(t, domain.PlanFree)
			tc.setup(gw)

			_, err := svc.CreateWallet(context.Background(), validCreateRequest())
			require.Error(t, err)
			var perr *gateway.PartnerError
			require.True(t, errors.As(err, &perr))
			assert.Contains(t, err.Error(), "creating wallet")

			wallets, err := svc.ListBusinessWallets(context.Background(), "biz-1")
			require.NoError(t, err)
			assert.Empty(t, wallets)
		})
	}
}

func TestCreateWalletValidation(t *testing.T) {
	svc, _, gw := newWalletFixture(t, domain.PlanFree)
	req := validCreateRequest()
	req.LegalID = ""
	req.Phone = " "

	_, err := svc.CreateWallet(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Contains(t, err.Error(), "legal_id, phone is required")
	assert.Zero(t, gw.registerCalls)
}

func TestWalletReads(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewWalletService(store, store.Directory(), &stubGateway{}, 0)
	ctx := context.Background()

	w := seedWallet(t, store, 250_000)
	require.NoError(t, store.Ledger().HoldFunds(ctx, w.ID, 50_000))

	bal, err := svc.GetBalance(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250_000), bal.Balance)
	assert.Equal(t, int64(50_000), bal.Held)
	assert.Equal(t, int64(200_000), bal.Available)

	owned, err := svc.OwnedBy(ctx, w.ID, w.BusinessID)
	require.NoError(t, err)
	assert.True(t, owned)
	owned, err = svc.OwnedBy(ctx, w.ID, "someone-else")
	require.NoError(t, err)
	assert.False(t, owned)

	_, err = svc.GetBalance(ctx, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = svc.ListTransactions(ctx, uuid.New(), repository.Page{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	all, err := svc.ListAllWallets(ctx, repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	allTxs, err := svc.ListAllTransactions(ctx, repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, allTxs, 1)

	_, err = svc.ListBusinessWallets(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
