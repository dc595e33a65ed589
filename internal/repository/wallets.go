package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const walletColumns = `id, business_id, balance, held_amount, currency, account_number, bank_name, account_name,
	tx_ref, order_ref, payment_ref, customer_ref, narration, is_primary, account_status,
	first_name, last_name, email, phone_number, created_at, updated_at`

func scanWallet(row pgx.Row) (models.Wallet, error) {
	var (
		w  models.Wallet
		id pgtype.UUID
	)
	err := row.Scan(
		&id, &w.BusinessID, &w.Balance, &w.HeldAmount, &w.Currency, &w.AccountNumber, &w.BankName, &w.AccountName,
		&w.TxRef, &w.OrderRef, &w.PaymentRef, &w.CustomerRef, &w.Narration, &w.Primary, &w.AccountStatus,
		&w.FirstName, &w.LastName, &w.Email, &w.PhoneNumber, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return models.Wallet{}, err
	}
	w.ID = FromPgUUID(id)
	return w, nil
}

func collectWallets(rows pgx.Rows) ([]models.Wallet, error) {
	defer rows.Close()
	var out []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (q *Queries) GetWallet(ctx context.Context, id uuid.UUID) (models.Wallet, error) {
	w, err := scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, ToPgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Wallet{}, fmt.Errorf("wallet %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return models.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

func (q *Queries) FindWalletByCorrelationKey(ctx context.Context, key string) (models.Wallet, error) {
	w, err := scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE tx_ref = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Wallet{}, fmt.Errorf("wallet with reference %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return models.Wallet{}, fmt.Errorf("find wallet by reference: %w", err)
	}
	return w, nil
}

func (q *Queries) LockWallets(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]models.Wallet, error) {
	ordered := sortedUnique(ids)
	out := make(map[uuid.UUID]models.Wallet, len(ordered))
	for _, id := range ordered {
		w, err := scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, ToPgUUID(id)))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallet %s: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("lock wallet %s: %w", id, err)
		}
		out[id] = w
	}
	return out, nil
}

func (q *Queries) InsertWallet(ctx context.Context, w *models.Wallet) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO wallets (id, business_id, balance, held_amount, currency, account_number, bank_name, account_name,
			tx_ref, order_ref, payment_ref, customer_ref, narration, is_primary, account_status,
			first_name, last_name, email, phone_number)
		VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at`,
		ToPgUUID(w.ID), w.BusinessID, w.Balance, w.Currency, w.AccountNumber, w.BankName, w.AccountName,
		w.TxRef, w.OrderRef, w.PaymentRef, w.CustomerRef, w.Narration, w.Primary, w.AccountStatus,
		w.FirstName, w.LastName, w.Email, w.PhoneNumber,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if isUniqueViolation(err, "") {
		return fmt.Errorf("insert wallet %s: %w: %w", w.ID, domain.ErrConflict, err)
	}
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	w.HeldAmount = 0
	return nil
}

func (q *Queries) ListWalletsByBusiness(ctx context.Context, businessID string) ([]models.Wallet, error) {
	rows, err := q.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE business_id = $1 ORDER BY created_at, id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list business wallets: %w", err)
	}
	return collectWallets(rows)
}

func (q *Queries) ListWallets(ctx context.Context, page Page) ([]models.Wallet, error) {
	page = page.Normalize()
	rows, err := q.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return collectWallets(rows)
}

func (q *Queries) AdjustBalance(ctx context.Context, walletID uuid.UUID, delta int64, minAvailable *int64) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx, `
		UPDATE wallets SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND ($3::BIGINT IS NULL OR balance - held_amount + $2 >= $3)
		RETURNING balance`,
		ToPgUUID(walletID), delta, minAvailable,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, q.explainRejectedUpdate(ctx, walletID, "adjust balance")
	}
	if err != nil {
		return 0, fmt.Errorf("adjust balance: %w", err)
	}
	return balance, nil
}

func (q *Queries) HoldFunds(ctx context.Context, walletID uuid.UUID, amount int64) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE wallets SET held_amount = held_amount + $2, updated_at = NOW()
		WHERE id = $1 AND balance - held_amount >= $2`,
		ToPgUUID(walletID), amount,
	)
	if err != nil {
		return fmt.Errorf("hold funds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return q.explainRejectedUpdate(ctx, walletID, "hold funds")
	}
	return nil
}

func (q *Queries) ReleaseFunds(ctx context.Context, walletID uuid.UUID, amount int64) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE wallets SET held_amount = held_amount - $2, updated_at = NOW()
		WHERE id = $1 AND held_amount >= $2`,
		ToPgUUID(walletID), amount,
	)
	if err != nil {
		return fmt.Errorf("release funds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("release funds on wallet %s: held amount below %d: %w", walletID, amount, domain.ErrConflict)
	}
	return nil
}

func (q *Queries) SettleHeldFunds(ctx context.Context, walletID uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx, `
		UPDATE wallets SET balance = balance - $2, held_amount = held_amount - $2, updated_at = NOW()
		WHERE id = $1 AND held_amount >= $2
		RETURNING balance`,
		ToPgUUID(walletID), amount,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("settle funds on wallet %s: held amount below %d: %w", walletID, amount, domain.ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("settle held funds: %w", err)
	}
	return balance, nil
}

func (q *Queries) explainRejectedUpdate(ctx context.Context, walletID uuid.UUID, op string) error {
	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`, ToPgUUID(walletID)).Scan(&exists); err != nil {
		return fmt.Errorf("%s: check wallet: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: wallet %s: %w", op, walletID, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: wallet %s: %w", op, walletID, domain.ErrInsufficientFunds)
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
