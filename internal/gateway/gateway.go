package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrOutcomeUnknown means the request may have reached the partner but no
// authoritative answer came back (timeout, dropped connection, unreadable 5xx).
var ErrOutcomeUnknown = errors.New("partner outcome unknown")

// Gateway is the outbound contract with the banking partner.
type Gateway interface {
	// RegisterCustomer creates the partner-side customer profile and returns its reference.
	RegisterCustomer(ctx context.Context, profile CustomerProfile) (string, error)
	// IssueCollectionAccount requests a permanent virtual account. It has side effects
	// on the partner and must not be retried blindly.
	IssueCollectionAccount(ctx context.Context, req CollectionAccountRequest) (*CollectionAccount, error)
	// InitiatePayout pushes funds to an external bank account. Only a nil error means funds moved.
	InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	// PayoutStatus looks up a payout by the transfer reference we generated.
	PayoutStatus(ctx context.Context, transferRef string) (*PayoutStatusResult, error)
}

// PartnerError is a definitive failure reported by the partner.
type PartnerError struct {
	Op         string
	Code       string
	Message    string
	HTTPStatus int
}

func (e *PartnerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("partner %s failed (%s): %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("partner %s failed: %s", e.Op, e.Message)
}

type CustomerProfile struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
	Address   string
	State     string
	City      string
}

type CollectionAccountRequest struct {
	CustomerRef       string
	HolderLegalNumber string
	AlternateName     string
	BankHint          string
	ExternalRef       string // echoed back on every funding webhook for this account
}

type CollectionAccount struct {
	AccountNumber    string
	BankName         string
	AccountName      string
	PaymentReference string
	OrderReference   string
	Raw              json.RawMessage
}

type PayoutRequest struct {
	TransferRef      string
	ReceiverAmount   decimal.Decimal
	ReceiverCurrency string
	SenderAmount     decimal.Decimal
	SenderCurrency   string
	TransferMethod   string
	ReceiverType     string
	AccountNumber    string
	AccountName      string
	SortCode         string
	CountryCode      string
}

type PayoutResult struct {
	PayoutRef   string
	TransferRef string
	Raw         json.RawMessage
}

type PayoutState string

const (
	PayoutStateCompleted PayoutState = "completed"
	PayoutStateFailed    PayoutState = "failed"
	PayoutStatePending   PayoutState = "pending"
)

type PayoutStatusResult struct {
	State     PayoutState
	PayoutRef string
	Message   string
	Raw       json.RawMessage
}
