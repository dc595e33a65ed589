package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/observability"
	"go.uber.org/zap"
)

const (
	pathRegisterCustomer  = "comhub/add_my_customer/"
	pathCollectionAccount = "partner/collection/bank_transfer/"
	pathInitiatePayout    = "partner/payout/initiate_transfer/"
	pathPayoutStatus      = "partner/payout/payout_status/"

	signatureHeader  = "moni-signature"
	maxResponseBytes = 1 << 20
)

// Config configures Client.
type Config struct {
	BaseURL           string
	Token             string
	Signature         string
	SourcePartnerCode string
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Client talks to the banking partner over HTTPS.
type Client struct {
	baseURL           string
	token             string
	signature         string
	sourcePartnerCode string
	http              *http.Client
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Client{
		baseURL:           base,
		token:             cfg.Token,
		signature:         cfg.Signature,
		sourcePartnerCode: cfg.SourcePartnerCode,
		http:              hc,
	}
}

// envelope holds the fields every partner response carries.
type envelope struct {
	Status  json.RawMessage `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"response_code"`
}

func (e envelope) ok() bool {
	var b bool
	if json.Unmarshal(e.Status, &b) == nil {
		return b
	}
	var s string
	if json.Unmarshal(e.Status, &s) == nil {
		switch strings.ToLower(s) {
		case "true", "success", "successful":
			return true
		}
	}
	return false
}

// call posts body to path and decodes the response into out. Transport failures and
// unreadable 5xx responses wrap ErrOutcomeUnknown; explicit failures are *PartnerError.
func (c *Client) call(ctx context.Context, op, path string, body, out any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := c.do(ctx, op, path, body, out)
	result := "success"
	switch {
	case errors.Is(err, ErrOutcomeUnknown):
		result = "unknown"
	case err != nil:
		result = "failed"
	}
	observability.ObservePartnerCall(op, result, time.Since(start))
	return raw, err
}

func (c *Client) do(ctx context.Context, op, path string, body, out any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("partner %s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("partner %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.signature != "" {
		req.Header.Set(signatureHeader, c.signature)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("partner %s: %w: %v", op, ErrOutcomeUnknown, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("partner %s: read response: %w: %v", op, ErrOutcomeUnknown, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("partner %s: http %d with unreadable body: %w", op, resp.StatusCode, ErrOutcomeUnknown)
		}
		return nil, &PartnerError{Op: op, Code: strconv.Itoa(resp.StatusCode), Message: "unreadable partner response", HTTPStatus: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.ok() {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		code := env.Code
		if code == "" {
			code = strconv.Itoa(resp.StatusCode)
		}
		zap.L().Warn("partner call rejected",
			zap.String("op", op),
			zap.Int("http_status", resp.StatusCode),
			zap.String("partner_code", code),
			zap.String("partner_message", msg),
		)
		return raw, &PartnerError{Op: op, Code: code, Message: msg, HTTPStatus: resp.StatusCode}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("partner %s: decode response: %w", op, err)
		}
	}
	return raw, nil
}

func (c *Client) RegisterCustomer(ctx context.Context, p CustomerProfile) (string, error) {
	body := map[string]string{
		"customer_first_name": p.FirstName,
		"customer_last_name":  p.LastName,
		"customer_phone":      p.Phone,
		"customer_email":      p.Email,
		"customer_address":    p.Address,
		"customer_state":      p.State,
		"customer_city":       p.City,
	}
	var out struct {
		CustomerRef string `json:"customer_ref"`
	}
	if _, err := c.call(ctx, "register_customer", pathRegisterCustomer, body, &out); err != nil {
		return "", err
	}
	if out.CustomerRef == "" {
		return "", &PartnerError{Op: "register_customer", Message: "response has no customer_ref"}
	}
	return out.CustomerRef, nil
}

func (c *Client) IssueCollectionAccount(ctx context.Context, r CollectionAccountRequest) (*CollectionAccount, error) {
	body := map[string]string{
		"pay_va_step":         "direct",
		"country_code":        "NG",
		"pay_currency":        "NGN",
		"holder_account_type": "permanent",
		"customer_ref":        r.CustomerRef,
		"pay_ext_ref":         r.ExternalRef,
		"alternate_name":      r.AlternateName,
		"holder_legal_number": r.HolderLegalNumber,
		"bank_name":           r.BankHint,
	}
	var out struct {
		PaymentReference    string `json:"payment_reference"`
		PaymentExtReference string `json:"payment_ext_reference"`
		HolderAccountNumber string `json:"holder_account_number"`
		HolderBankName      string `json:"holder_bank_name"`
		AccountName         string `json:"account_name"`
	}
	raw, err := c.call(ctx, "issue_collection_account", pathCollectionAccount, body, &out)
	if err != nil {
		return nil, err
	}
	if out.HolderAccountNumber == "" {
		return nil, &PartnerError{Op: "issue_collection_account", Message: "response has no holder_account_number"}
	}
	return &CollectionAccount{
		AccountNumber:    out.HolderAccountNumber,
		BankName:         out.HolderBankName,
		AccountName:      out.AccountName,
		PaymentReference: out.PaymentReference,
		OrderReference:   out.PaymentExtReference,
		Raw:              raw,
	}, nil
}

func (c *Client) InitiatePayout(ctx context.Context, r PayoutRequest) (*PayoutResult, error) {
	body := map[string]any{
		"payout_step":            "direct",
		"receiver_currency":      r.ReceiverCurrency,
		"receiver_amount":        r.ReceiverAmount.String(),
		"transfer_method":        r.TransferMethod,
		"transfer_receiver_type": r.ReceiverType,
		"receiver_account_num":   r.AccountNumber,
		"receiver_country_code":  r.CountryCode,
		"receiver_account_name":  r.AccountName,
		"account_name":           r.AccountName,
		"receiver_sort_code":     r.SortCode,
		"sender_amount":          r.SenderAmount.String(),
		"sender_currency":        r.SenderCurrency,
		"transfer_ext_ref":       r.TransferRef,
		"source_partner_code":    c.sourcePartnerCode,
	}
	var out struct {
		PayoutRef      string `json:"payout_ref"`
		TransferExtRef string `json:"transfer_ext_ref"`
	}
	raw, err := c.call(ctx, "initiate_payout", pathInitiatePayout, body, &out)
	if err != nil {
		return nil, err
	}
	if out.TransferExtRef == "" {
		out.TransferExtRef = r.TransferRef
	}
	return &PayoutResult{PayoutRef: out.PayoutRef, TransferRef: out.TransferExtRef, Raw: raw}, nil
}

func (c *Client) PayoutStatus(ctx context.Context, transferRef string) (*PayoutStatusResult, error) {
	body := map[string]string{"transfer_ext_ref": transferRef}
	var out struct {
		PayoutStatus string `json:"payout_status"`
		PayoutRef    string `json:"payout_ref"`
		Message      string `json:"message"`
	}
	raw, err := c.call(ctx, "payout_status", pathPayoutStatus, body, &out)
	if err != nil {
		return nil, err
	}
	return &PayoutStatusResult{
		State:     parsePayoutState(out.PayoutStatus),
		PayoutRef: out.PayoutRef,
		Message:   out.Message,
		Raw:       raw,
	}, nil
}

func parsePayoutState(s string) PayoutState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "successful", "success", "paid":
		return PayoutStateCompleted
	case "failed", "reversed", "cancelled", "canceled", "declined":
		return PayoutStateFailed
	default:
		return PayoutStatePending
	}
}
