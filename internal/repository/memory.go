package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/google/uuid"
)

// MemoryStore is a process-local ledger used for local runs and tests. A single mutex
// serializes every unit of work, which gives the same guarantees as the row locks in Store.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type memState struct {
	wallets    map[uuid.UUID]models.Wallet
	txs        []models.Transaction
	businesses map[string]models.Business
	users      map[string]models.User // by lower-cased email
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			wallets:    make(map[uuid.UUID]models.Wallet),
			businesses: make(map[string]models.Business),
			users:      make(map[string]models.User),
		},
		now: time.Now,
	}
}

func (s *memState) clone() *memState {
	out := &memState{
		wallets:    make(map[uuid.UUID]models.Wallet, len(s.wallets)),
		txs:        make([]models.Transaction, len(s.txs)),
		businesses: s.businesses,
		users:      s.users,
	}
	for id, w := range s.wallets {
		out.wallets[id] = w
	}
	copy(out.txs, s.txs)
	return out
}

// RunInTx runs fn against a private copy of the state and publishes it only when fn succeeds.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(l Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memLedger{state: work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) read(fn func(l *memLedger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memLedger{state: s.state, now: s.now})
}

// Ledger returns a view where every call is its own unit of work.
func (s *MemoryStore) Ledger() Ledger {
	return memAutoLedger{s: s}
}

func (s *MemoryStore) Directory() Directory {
	return memDirectory{s: s}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// AddBusiness registers a business visible to Directory lookups.
func (s *MemoryStore) AddBusiness(b models.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	s.state.businesses[b.ID] = b
}

// AddUser registers a user visible to Directory lookups.
func (s *MemoryStore) AddUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.state.users[strings.ToLower(strings.TrimSpace(u.Email))] = u
}

type memDirectory struct {
	s *MemoryStore
}

func (d memDirectory) GetBusiness(_ context.Context, id string) (models.Business, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	b, ok := d.s.state.businesses[id]
	if !ok {
		return models.Business{}, fmt.Errorf("business %s: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

func (d memDirectory) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	u, ok := d.s.state.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	return u, nil
}

// memLedger operates on state owned by the caller; it never locks.
type memLedger struct {
	state *memState
	now   func() time.Time
}

func (l *memLedger) GetWallet(_ context.Context, id uuid.UUID) (models.Wallet, error) {
	w, ok := l.state.wallets[id]
	if !ok {
		return models.Wallet{}, fmt.Errorf("wallet %s: %w", id, domain.ErrNotFound)
	}
	return w, nil
}

func (l *memLedger) FindWalletByCorrelationKey(_ context.Context, key string) (models.Wallet, error) {
	for _, w := range l.state.wallets {
		if w.TxRef == key {
			return w, nil
		}
	}
	return models.Wallet{}, fmt.Errorf("wallet with reference %q: %w", key, domain.ErrNotFound)
}

func (l *memLedger) LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]models.Wallet, error) {
	out := make(map[uuid.UUID]models.Wallet, len(ids))
	for _, id := range sortedUnique(ids) {
		w, err := l.GetWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

func (l *memLedger) InsertWallet(_ context.Context, w *models.Wallet) error {
	if _, ok := l.state.wallets[w.ID]; ok {
		return fmt.Errorf("insert wallet %s: %w", w.ID, domain.ErrConflict)
	}
	for _, existing := range l.state.wallets {
		if existing.TxRef == w.TxRef {
			return fmt.Errorf("insert wallet: reference %q: %w", w.TxRef, domain.ErrConflict)
		}
	}
	now := l.now()
	w.HeldAmount = 0
	w.CreatedAt = now
	w.UpdatedAt = now
	l.state.wallets[w.ID] = *w
	return nil
}

func (l *memLedger) ListWalletsByBusiness(_ context.Context, businessID string) ([]models.Wallet, error) {
	var out []models.Wallet
	for _, w := range l.state.wallets {
		if w.BusinessID == businessID {
			out = append(out, w)
		}
	}
	sortWallets(out, false)
	return out, nil
}

func (l *memLedger) ListWallets(_ context.Context, page Page) ([]models.Wallet, error) {
	page = page.Normalize()
	all := make([]models.Wallet, 0, len(l.state.wallets))
	for _, w := range l.state.wallets {
		all = append(all, w)
	}
	sortWallets(all, true)
	return paginate(all, page), nil
}

func (l *memLedger) AdjustBalance(ctx context.Context, walletID uuid.UUID, delta int64, minAvailable *int64) (int64, error) {
	w, err := l.GetWallet(ctx, walletID)
	if err != nil {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	if minAvailable != nil && w.Available()+delta < *minAvailable {
		return 0, fmt.Errorf("adjust balance: wallet %s: %w", walletID, domain.ErrInsufficientFunds)
	}
	w.Balance += delta
	w.UpdatedAt = l.now()
	l.state.wallets[walletID] = w
	return w.Balance, nil
}

func (l *memLedger) HoldFunds(ctx context.Context, walletID uuid.UUID, amount int64) error {
	w, err := l.GetWallet(ctx, walletID)
	if err != nil {
		return fmt.Errorf("hold funds: %w", err)
	}
	if w.Available() < amount {
		return fmt.Errorf("hold funds: wallet %s: %w", walletID, domain.ErrInsufficientFunds)
	}
	w.HeldAmount += amount
	w.UpdatedAt = l.now()
	l.state.wallets[walletID] = w
	return nil
}

func (l *memLedger) ReleaseFunds(ctx context.Context, walletID uuid.UUID, amount int64) error {
	w, err := l.GetWallet(ctx, walletID)
	if err != nil {
		return fmt.Errorf("release funds: %w", err)
	}
	if w.HeldAmount < amount {
		return fmt.Errorf("release funds on wallet %s: held amount below %d: %w", walletID, amount, domain.ErrConflict)
	}
	w.HeldAmount -= amount
	w.UpdatedAt = l.now()
	l.state.wallets[walletID] = w
	return nil
}

func (l *memLedger) SettleHeldFunds(ctx context.Context, walletID uuid.UUID, amount int64) (int64, error) {
	w, err := l.GetWallet(ctx, walletID)
	if err != nil {
		return 0, fmt.Errorf("settle held funds: %w", err)
	}
	if w.HeldAmount < amount {
		return 0, fmt.Errorf("settle funds on wallet %s: held amount below %d: %w", walletID, amount, domain.ErrConflict)
	}
	w.HeldAmount -= amount
	w.Balance -= amount
	w.UpdatedAt = l.now()
	l.state.wallets[walletID] = w
	return w.Balance, nil
}

func (l *memLedger) InsertTransaction(_ context.Context, tx *models.Transaction) error {
	if _, ok := l.state.wallets[tx.WalletID]; !ok {
		return fmt.Errorf("insert transaction: wallet %s: %w", tx.WalletID, domain.ErrNotFound)
	}
	if tx.Type == domain.TxTypeFunding {
		for _, existing := range l.state.txs {
			if existing.Type == domain.TxTypeFunding && existing.TxID == tx.TxID {
				return fmt.Errorf("funding reference %s already recorded: %w", tx.TxID, domain.ErrConflict)
			}
		}
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	now := l.now()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	l.state.txs = append(l.state.txs, *tx)
	return nil
}

func (l *memLedger) GetTransaction(_ context.Context, id uuid.UUID) (models.Transaction, error) {
	for _, t := range l.state.txs {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
}

func (l *memLedger) FindFundingTransaction(_ context.Context, partnerRef string) (models.Transaction, error) {
	for _, t := range l.state.txs {
		if t.Type == domain.TxTypeFunding && t.TxID == partnerRef {
			return t, nil
		}
	}
	return models.Transaction{}, fmt.Errorf("funding transaction %q: %w", partnerRef, domain.ErrNotFound)
}

func (l *memLedger) ListTransactionsByWallet(_ context.Context, walletID uuid.UUID, page Page) ([]models.Transaction, error) {
	var out []models.Transaction
	for i := len(l.state.txs) - 1; i >= 0; i-- {
		if l.state.txs[i].WalletID == walletID {
			out = append(out, l.state.txs[i])
		}
	}
	return paginate(out, page.Normalize()), nil
}

func (l *memLedger) ListTransactionsByTxID(_ context.Context, txID string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range l.state.txs {
		if t.TxID == txID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *memLedger) ListTransactions(_ context.Context, page Page) ([]models.Transaction, error) {
	out := make([]models.Transaction, 0, len(l.state.txs))
	for i := len(l.state.txs) - 1; i >= 0; i-- {
		out = append(out, l.state.txs[i])
	}
	return paginate(out, page.Normalize()), nil
}

func (l *memLedger) ListPendingPayouts(_ context.Context, olderThan time.Time, limit int32) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.Transaction
	for _, t := range l.state.txs {
		if len(out) == int(limit) {
			break
		}
		if t.Status == domain.TxStatusPending && t.Type == domain.TxTypePayment &&
			t.Direction == domain.DirectionDebit && !t.CreatedAt.After(olderThan) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *memLedger) UpdateTransactionStatus(_ context.Context, id uuid.UUID, u TransactionUpdate) error {
	for i := range l.state.txs {
		t := &l.state.txs[i]
		if t.ID != id {
			continue
		}
		if t.Status != u.From {
			break
		}
		t.Status = u.To
		if u.TxID != "" {
			t.TxID = u.TxID
		}
		if len(u.GatewayResponse) > 0 {
			t.GatewayResponse = u.GatewayResponse
		}
		t.UpdatedAt = l.now()
		return nil
	}
	return fmt.Errorf("transaction %s is not %s: %w", id, u.From, domain.ErrConflict)
}

func (l *memLedger) LedgerDiscrepancies(context.Context) ([]models.LedgerDiscrepancy, error) {
	sums := make(map[uuid.UUID]int64, len(l.state.wallets))
	pending := make(map[uuid.UUID]int64, len(l.state.wallets))
	for _, t := range l.state.txs {
		switch {
		case t.Status == domain.TxStatusSuccessful:
			sums[t.WalletID] += t.SignedAmount()
		case t.Status == domain.TxStatusPending && t.Type == domain.TxTypePayment && t.Direction == domain.DirectionDebit:
			pending[t.WalletID] += t.Amount
		}
	}
	var out []models.LedgerDiscrepancy
	for id, w := range l.state.wallets {
		if w.Balance != sums[id] || w.HeldAmount != pending[id] {
			out = append(out, models.LedgerDiscrepancy{
				WalletID:   id,
				Balance:    w.Balance,
				LedgerSum:  sums[id],
				HeldAmount: w.HeldAmount,
				PendingSum: pending[id],
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WalletID.String() < out[j].WalletID.String() })
	return out, nil
}

func sortWallets(ws []models.Wallet, newestFirst bool) {
	sort.SliceStable(ws, func(i, j int) bool {
		if !ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			if newestFirst {
				return ws[i].CreatedAt.After(ws[j].CreatedAt)
			}
			return ws[i].CreatedAt.Before(ws[j].CreatedAt)
		}
		return ws[i].ID.String() < ws[j].ID.String()
	})
}

func paginate[T any](items []T, page Page) []T {
	if int(page.Offset) >= len(items) {
		return nil
	}
	items = items[page.Offset:]
	if int(page.Limit) < len(items) {
		items = items[:page.Limit]
	}
	return items
}

// memAutoLedger wraps every call in its own unit of work.
type memAutoLedger struct {
	s *MemoryStore
}

func (a memAutoLedger) write(ctx context.Context, fn func(l Ledger) error) error {
	return a.s.RunInTx(ctx, fn)
}

func (a memAutoLedger) GetWallet(ctx context.Context, id uuid.UUID) (w models.Wallet, err error) {
	err = a.s.read(func(l *memLedger) error { w, err = l.GetWallet(ctx, id); return err })
	return w, err
}

func (a memAutoLedger) FindWalletByCorrelationKey(ctx context.Context, key string) (w models.Wallet, err error) {
	err = a.s.read(func(l *memLedger) error { w, err = l.FindWalletByCorrelationKey(ctx, key); return err })
	return w, err
}

func (a memAutoLedger) LockWallets(ctx context.Context, ids ...uuid.UUID) (out map[uuid.UUID]models.Wallet, err error) {
	err = a.s.read(func(l *memLedger) error { out, err = l.LockWallets(ctx, ids...); return err })
	return out, err
}

func (a memAutoLedger) InsertWallet(ctx context.Context, w *models.Wallet) error {
	return a.write(ctx, func(l Ledger) error { return l.InsertWallet(ctx, w) })
}

func (a memAutoLedger) ListWalletsByBusiness(ctx context.Context, businessID string) (out []models.Wallet, err error) {
	err = a.s.read(func(l *memLedger) error { out, err = l.ListWalletsByBusiness(ctx, businessID); return err })
	return out, err
}

func (a memAutoLedger) ListWallets(ctx context.Context, page Page) (out []models.Wallet, err error) {
	err = a.s.read(func(l *memLedger) error { out, err = l.ListWallets(ctx, page); return err })
	return out, err
}

func (a memAutoLedger) AdjustBalance(ctx context.Context, walletID uuid.UUID, delta int64, minAvailable *int64) (balance int64, err error) {
	err = a.write(ctx, func(l Ledger) error { balance, err = l.AdjustBalance(ctx, walletID, delta, minAvailable); return err })
	return balance, err
}

func (a memAutoLedger) HoldFunds(ctx context.Context, walletID uuid.UUID, amount int64) error {
	return a.write(ctx, func(l Ledger) error { return l.HoldFunds(ctx, walletID, amount) })
}

func (a memAutoLedger) ReleaseFunds(ctx context.Context, walletID uuid.UUID, amount int64) error {
	return a.write(ctx, func(l Ledger) error { return l.ReleaseFunds(ctx, walletID, amount) })
}

func (a memAutoLedger) SettleHeldFunds(ctx context.Context, walletID uuid.UUID, amount int64) (balance int64, err error) {
	err = a.write(ctx, func(l Ledger) error { balance, err = l.SettleHeldFunds(ctx, walletID, amount); return err })
	return balance, err
}

func (a memAutoLedger) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	return a.write(ctx, func(l Ledger) error { return l.InsertTransaction(ctx, tx) })
}

func (a memAutoLedger) GetTransaction(ctx context.Context, id uuid.UUID) (t models.Transaction, err error) {
	err = a.s.read(func(l *memLedger) error { t, err = l.GetTransaction(ctx, id); return err })
	return t, err
}

func (a memAutoLedger) FindFundingTransaction(ctx context.Context, partnerRef string) (t models.Transaction, err error) {
	err = a.s.read(func(l *memLedger) error { t, err = l.FindFundingTransaction(ctx, partnerRef); return err })
	return t, err
}

func (a memAutoLedger) ListTransactionsByWallet(ctx context.Context, walletID uuid.UUID, page Page) (out []models.Transaction, err error) {
	err = a.s.read(func(l *memLedger) error { out, err = l.ListTransactionsByWallet(ctx, walletID, page); return err })
	return out, err
}

func (a memAutoLedger) ListTransactionsByTxID(ctx context.Context, txID string) (out []models.Transaction, err error) {
	err = a.s.read(func(l *memLedger) error { out, err = l.ListTransactionsByTxID(ctx, txID); return err })
	return out, err
}

func (a memAutoLedger) ListTransactions(ctx context.Context, page Page) (out []models.Transaction, err error) {
	err = a.s.read(func(l *memLedger) error { out, err = l.ListTransactions(ctx, page); return err })
	return out, err
}

func (a memAutoLedger) ListPendingPayouts(ctx context.Context, olderThan time.Time, limit int32) (out []models.Transaction, err error) {
	err = a.s.read(func(l *memLedger) error { out, err = l.ListPendingPayouts(ctx, olderThan, limit); return err })
	return out, err
}

func (a memAutoLedger) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, u TransactionUpdate) error {
	return a.write(ctx, func(l Ledger) error { return l.UpdateTransactionStatus(ctx, id, u) })
}

func (a memAutoLedger) LedgerDiscrepancies(ctx context.Context) (out []models.LedgerDiscrepancy, err error) {
	err = a.s.read(func(l *memLedger) error { out, err = l.LedgerDiscrepancies(ctx); return err })
	return out, err
}
