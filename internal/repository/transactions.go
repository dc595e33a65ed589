package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const transactionColumns = `id, wallet_id, shipment_id, tx_id, tx_ref, amount, currency, type, direction, status,
	meta, gateway_response, created_at, updated_at`

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var (
		t              models.Transaction
		id, walletID   pgtype.UUID
		meta, response []byte
	)
	err := row.Scan(
		&id, &walletID, &t.ShipmentID, &t.TxID, &t.TxRef, &t.Amount, &t.Currency, &t.Type, &t.Direction, &t.Status,
		&meta, &response, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return models.Transaction{}, err
	}
	t.ID = FromPgUUID(id)
	t.WalletID = FromPgUUID(walletID)
	if len(meta) > 0 {
		t.Meta = json.RawMessage(meta)
	}
	if len(response) > 0 {
		t.GatewayResponse = json.RawMessage(response)
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO transactions (id, wallet_id, shipment_id, tx_id, tx_ref, amount, currency, type, direction, status,
			meta, gateway_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		ToPgUUID(tx.ID), ToPgUUID(tx.WalletID), tx.ShipmentID, tx.TxID, tx.TxRef, tx.Amount, tx.Currency,
		tx.Type, tx.Direction, tx.Status, nullableJSON(tx.Meta), nullableJSON(tx.GatewayResponse),
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if isUniqueViolation(err, fundingRefConstraintName) {
		return fmt.Errorf("funding reference %s already recorded: %w", tx.TxID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, ToPgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (q *Queries) FindFundingTransaction(ctx context.Context, partnerRef string) (models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE type = $1 AND tx_id = $2`,
		domain.TxTypeFunding, partnerRef,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, fmt.Errorf("funding transaction %q: %w", partnerRef, domain.ErrNotFound)
	}
	if err != nil {
		return models.Transaction{}, fmt.Errorf("find funding transaction: %w", err)
	}
	return t, nil
}

func (q *Queries) ListTransactionsByWallet(ctx context.Context, walletID uuid.UUID, page Page) ([]models.Transaction, error) {
	page = page.Normalize()
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		ToPgUUID(walletID), page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (q *Queries) ListTransactionsByTxID(ctx context.Context, txID string) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE tx_id = $1 ORDER BY created_at, id`, txID)
	if err != nil {
		return nil, fmt.Errorf("list transactions by tx id: %w", err)
	}
	return collectTransactions(rows)
}

func (q *Queries) ListTransactions(ctx context.Context, page Page) ([]models.Transaction, error) {
	page = page.Normalize()
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (q *Queries) ListPendingPayouts(ctx context.Context, olderThan time.Time, limit int32) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = $1 AND type = $2 AND direction = $3 AND created_at <= $4
		ORDER BY created_at
		LIMIT $5`,
		domain.TxStatusPending, domain.TxTypePayment, domain.DirectionDebit, olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending payouts: %w", err)
	}
	return collectTransactions(rows)
}

func (q *Queries) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, u TransactionUpdate) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions
		SET status = $3,
			tx_id = COALESCE(NULLIF($4::text, ''), tx_id),
			gateway_response = COALESCE($5, gateway_response),
			updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		ToPgUUID(id), u.From, u.To, u.TxID, nullableJSON(u.GatewayResponse),
	)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("transaction %s is not %s: %w", id, u.From, domain.ErrConflict)
	}
	return nil
}

func (q *Queries) LedgerDiscrepancies(ctx context.Context) ([]models.LedgerDiscrepancy, error) {
	rows, err := q.db.Query(ctx, `
		SELECT w.id, w.balance, l.ledger_sum, w.held_amount, l.pending_sum
		FROM wallets w
		CROSS JOIN LATERAL (
			SELECT
				COALESCE(SUM(CASE WHEN t.status = 'successful' THEN
					CASE WHEN t.direction = 'credit' THEN t.amount ELSE -t.amount END END), 0)::BIGINT AS ledger_sum,
				COALESCE(SUM(CASE WHEN t.status = 'pending' AND t.type = 'payment' AND t.direction = 'debit'
					THEN t.amount END), 0)::BIGINT AS pending_sum
			FROM transactions t
			WHERE t.wallet_id = w.id
		) l
		WHERE w.balance <> l.ledger_sum OR w.held_amount <> l.pending_sum
		ORDER BY w.id`)
	if err != nil {
		return nil, fmt.Errorf("ledger discrepancies: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerDiscrepancy
	for rows.Next() {
		var (
			d  models.LedgerDiscrepancy
			id pgtype.UUID
		)
		if err := rows.Scan(&id, &d.Balance, &d.LedgerSum, &d.HeldAmount, &d.PendingSum); err != nil {
			return nil, fmt.Errorf("scan ledger discrepancy: %w", err)
		}
		d.WalletID = FromPgUUID(id)
		out = append(out, d)
	}
	return out, rows.Err()
}
