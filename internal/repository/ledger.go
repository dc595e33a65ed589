package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/google/uuid"
)

// Ledger is the wallet and transaction data layer. Implementations return errors
// wrapping domain.ErrNotFound, domain.ErrInsufficientFunds and domain.ErrConflict.
type Ledger interface {
	GetWallet(ctx context.Context, id uuid.UUID) (models.Wallet, error)
	FindWalletByCorrelationKey(ctx context.Context, key string) (models.Wallet, error)
	// LockWallets locks every wallet in ascending id order for the rest of the unit of work.
	LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]models.Wallet, error)
	InsertWallet(ctx context.Context, w *models.Wallet) error
	ListWalletsByBusiness(ctx context.Context, businessID string) ([]models.Wallet, error)
	ListWallets(ctx context.Context, page Page) ([]models.Wallet, error)

	// AdjustBalance adds delta to the balance. When minAvailable is set the update is
	// rejected with ErrInsufficientFunds if balance-held+delta would fall below it.
	AdjustBalance(ctx context.Context, walletID uuid.UUID, delta int64, minAvailable *int64) (int64, error)
	HoldFunds(ctx context.Context, walletID uuid.UUID, amount int64) error
	ReleaseFunds(ctx context.Context, walletID uuid.UUID, amount int64) error
	SettleHeldFunds(ctx context.Context, walletID uuid.UUID, amount int64) (int64, error)

	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	FindFundingTransaction(ctx context.Context, partnerRef string) (models.Transaction, error)
	ListTransactionsByWallet(ctx context.Context, walletID uuid.UUID, page Page) ([]models.Transaction, error)
	ListTransactionsByTxID(ctx context.Context, txID string) ([]models.Transaction, error)
	ListTransactions(ctx context.Context, page Page) ([]models.Transaction, error)
	ListPendingPayouts(ctx context.Context, olderThan time.Time, limit int32) ([]models.Transaction, error)
	// UpdateTransactionStatus applies u only while the stored status is still u.From.
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, u TransactionUpdate) error

	// LedgerDiscrepancies reports wallets whose balance differs from their successful
	// transactions or whose held amount differs from their pending payouts.
	LedgerDiscrepancies(ctx context.Context) ([]models.LedgerDiscrepancy, error)
}

// TransactionUpdate is a conditional status change. An empty TxID or nil
// GatewayResponse keeps the stored value.
type TransactionUpdate struct {
	From            string
	To              string
	TxID            string
	GatewayResponse json.RawMessage
}

// Directory is the read-only view of businesses and users owned by other services.
type Directory interface {
	GetBusiness(ctx context.Context, id string) (models.Business, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Page bounds list queries.
type Page struct {
	Limit  int32
	Offset int32
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

var (
	_ Ledger    = (*Queries)(nil)
	_ Ledger    = (*memLedger)(nil)
	_ Ledger    = memAutoLedger{}
	_ Directory = (*Queries)(nil)
	_ Directory = memDirectory{}
)
