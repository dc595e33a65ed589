package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Business is the external owner of wallets. Only the fields the ledger reads are mapped.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the external account holder whose plan decides a new wallet's opening balance.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Plan      string    `json:"plan"` // "free" or "paid"
	CreatedAt time.Time `json:"created_at"`
}

// Wallet is a ledger account tied to a business and backed by a partner collection account.
// Balance and HeldAmount are minor units.
type Wallet struct {
	ID            uuid.UUID `json:"id"`
	BusinessID    string    `json:"business_id"`
	Balance       int64     `json:"balance"`
	HeldAmount    int64     `json:"held_amount"`
	Currency      string    `json:"currency"`
	AccountNumber string    `json:"account_number"`
	BankName      string    `json:"bank_name"`
	AccountName   string    `json:"account_name"`
	TxRef         string    `json:"tx_ref"`
	OrderRef      string    `json:"order_ref"`
	PaymentRef    string    `json:"payment_ref"`
	CustomerRef   string    `json:"customer_ref"`
	Narration     string    `json:"narration"`
	Primary       bool      `json:"primary"`
	AccountStatus string    `json:"account_status"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	PhoneNumber   string    `json:"phone_number"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Available returns the balance not reserved by in-flight payouts.
func (w Wallet) Available() int64 {
	return w.Balance - w.HeldAmount
}

// Transaction is one balance-affecting event against one wallet. Amount is always
// positive; Direction carries the sign.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	WalletID        uuid.UUID       `json:"wallet_id"`
	ShipmentID      *string         `json:"shipment_id,omitempty"`
	TxID            string          `json:"tx_id"`
	TxRef           string          `json:"tx_ref"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Type            string          `json:"type"`      // funding, payment, withdrawal, opening_balance
	Direction       string          `json:"direction"` // debit or credit
	Status          string          `json:"status"`    // pending, successful, failed
	Meta            json.RawMessage `json:"meta,omitempty"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SignedAmount returns the amount as it contributes to the wallet balance.
func (t Transaction) SignedAmount() int64 {
	if t.Direction == "debit" {
		return -t.Amount
	}
	return t.Amount
}

// LedgerDiscrepancy reports a wallet whose balance differs from its transaction history,
// or whose held amount differs from its pending payouts.
type LedgerDiscrepancy struct {
	WalletID   uuid.UUID `json:"wallet_id"`
	Balance    int64     `json:"balance"`
	LedgerSum  int64     `json:"ledger_sum"`
	HeldAmount int64     `json:"held_amount"`
	PendingSum int64     `json:"pending_sum"`
}
