package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/gateway"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/notify"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// stubGateway is a programmable partner. Zero values succeed.
type stubGateway struct {
	mu sync.Mutex

	registerErr error
	issueErr    error
	payoutErr   error
	statusErr   error
	payoutRef   string
	state       gateway.PayoutState

	registerCalls int
	issueCalls    int
	payoutCalls   int
	lastIssue     gateway.CollectionAccountRequest
	lastPayout    gateway.PayoutRequest
}

func (s *stubGateway) RegisterCustomer(_ context.Context, p gateway.CustomerProfile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerCalls++
	if s.registerErr != nil {
		return "", s.registerErr
	}
	return "CUS-" + p.Email, nil
}

func (s *stubGateway) IssueCollectionAccount(_ context.Context, r gateway.CollectionAccountRequest) (*gateway.CollectionAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueCalls++
	s.lastIssue = r
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	return &gateway.CollectionAccount{
		AccountNumber:    fmt.Sprintf("01%08d", s.issueCalls),
		BankName:         "GTBank",
		AccountName:      r.AlternateName,
		PaymentReference: "PAY-" + r.ExternalRef,
		OrderReference:   r.ExternalRef,
	}, nil
}

func (s *stubGateway) InitiatePayout(_ context.Context, r gateway.PayoutRequest) (*gateway.PayoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payoutCalls++
	s.lastPayout = r
	if s.payoutErr != nil {
		return nil, s.payoutErr
	}
	ref := s.payoutRef
	if ref == "" {
		ref = "PO-" + r.TransferRef
	}
	return &gateway.PayoutResult{PayoutRef: ref, TransferRef: r.TransferRef, Raw: []byte(`{"status":true}`)}, nil
}

func (s *stubGateway) PayoutStatus(_ context.Context, transferRef string) (*gateway.PayoutStatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	state := s.state
	if state == "" {
		state = gateway.PayoutStatePending
	}
	return &gateway.PayoutStatusResult{State: state, PayoutRef: "PO-" + transferRef, Raw: []byte(`{"status":true}`)}, nil
}

func (s *stubGateway) setPayoutErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payoutErr = err
}

func (s *stubGateway) setState(state gateway.PayoutState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// flakyStore fails the failOn-th unit of work, counting from one.
type flakyStore struct {
	*repository.MemoryStore

	mu     sync.Mutex
	calls  int
	failOn int
}

func (f *flakyStore) RunInTx(ctx context.Context, fn func(l repository.Ledger) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failOn
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return f.MemoryStore.RunInTx(ctx, fn)
}

// inspectingGateway snapshots the wallet's ledger while a payout is with the partner.
type inspectingGateway struct {
	*stubGateway
	store    *repository.MemoryStore
	walletID uuid.UUID

	seen           []models.Transaction
	heldDuringCall int64
}

func (g *inspectingGateway) InitiatePayout(ctx context.Context, r gateway.PayoutRequest) (*gateway.PayoutResult, error) {
	w, err := g.store.Ledger().GetWallet(ctx, g.walletID)
	if err != nil {
		return nil, err
	}
	g.heldDuringCall = w.HeldAmount
	txs, err := g.store.Ledger().ListTransactionsByTxID(ctx, r.TransferRef)
	if err != nil {
		return nil, err
	}
	g.seen = txs
	return g.stubGateway.InitiatePayout(ctx, r)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.FundingAlert
	err    error
}

func (n *recordingNotifier) SendFundingAlert(_ context.Context, alert notify.FundingAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

var errTimeout = fmt.Errorf("partner initiate_payout: %w: context deadline exceeded", gateway.ErrOutcomeUnknown)

// seedWallet creates a wallet whose opening balance is backed by a funding transaction.
func seedWallet(t *testing.T, store *repository.MemoryStore, balance int64) models.Wallet {
	t.Helper()
	ctx := context.Background()
	w := &models.Wallet{
		ID:            uuid.New(),
		BusinessID:    "biz-" + uuid.NewString()[:8],
		Currency:      domain.CurrencyNGN,
		TxRef:         domain.NewReference(domain.RefPrefixWallet),
		AccountStatus: domain.AccountStatusActive,
		FirstName:     "Ada",
		Email:         "ada@acme.test",
	}
	err := store.RunInTx(ctx, func(l repository.Ledger) error {
		if err := l.InsertWallet(ctx, w); err != nil {
			return err
		}
		if balance == 0 {
			return nil
		}
		if _, err := l.AdjustBalance(ctx, w.ID, balance, nil); err != nil {
			return err
		}
		return l.InsertTransaction(ctx, &models.Transaction{
			WalletID:  w.ID,
			TxID:      "seed-" + w.ID.String(),
			TxRef:     w.TxRef,
			Amount:    balance,
			Currency:  w.Currency,
			Type:      domain.TxTypeFunding,
			Direction: domain.DirectionCredit,
			Status:    domain.TxStatusSuccessful,
		})
	})
	require.NoError(t, err)
	got, err := store.Ledger().GetWallet(ctx, w.ID)
	require.NoError(t, err)
	return got
}

func walletOf(t *testing.T, store *repository.MemoryStore, id uuid.UUID) models.Wallet {
	t.Helper()
	w, err := store.Ledger().GetWallet(context.Background(), id)
	require.NoError(t, err)
	return w
}

func txCount(t *testing.T, store *repository.MemoryStore, walletID uuid.UUID) int {
	t.Helper()
	txs, err := store.Ledger().ListTransactionsByWallet(context.Background(), walletID, repository.Page{Limit: 500})
	require.NoError(t, err)
	return len(txs)
}

// requireBalanced asserts every wallet balance equals its signed successful transactions.
func requireBalanced(t *testing.T, store *repository.MemoryStore) {
	t.Helper()
	discrepancies, err := store.Ledger().LedgerDiscrepancies(context.Background())
	require.NoError(t, err)
	require.Empty(t, discrepancies)
}
