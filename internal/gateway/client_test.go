package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken     = "secret-token"
	testSignature = "secret-signature"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:           srv.URL,
		Token:             testToken,
		Signature:         testSignature,
		SourcePartnerCode: "NGSQGT",
		Timeout:           2 * time.Second,
	})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestRegisterCustomer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comhub/add_my_customer/", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Equal(t, testSignature, r.Header.Get("moni-signature"))
		body := decodeBody(t, r)
		assert.Equal(t, "Ada", body["customer_first_name"])
		assert.Equal(t, "ada@acme.test", body["customer_email"])
		_, _ = w.Write([]byte(`{"status": true, "message": "ok", "customer_ref": "CUS-1"}`))
	})

	ref, err := client.RegisterCustomer(context.Background(), CustomerProfile{FirstName: "Ada", LastName: "L", Email: "ada@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "CUS-1", ref)
}

func TestRegisterCustomerRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status": false, "message": "customer_phone is invalid"}`))
	})

	_, err := client.RegisterCustomer(context.Background(), CustomerProfile{Email: "ada@acme.test"})
	require.Error(t, err)
	var perr *PartnerError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "customer_phone is invalid", perr.Message)
	assert.Equal(t, http.StatusBadRequest, perr.HTTPStatus)
	assert.NotContains(t, err.Error(), testToken)
	assert.NotContains(t, err.Error(), testSignature)
}

func TestIssueCollectionAccount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/partner/collection/bank_transfer/", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "direct", body["pay_va_step"])
		assert.Equal(t, "permanent", body["holder_account_type"])
		assert.Equal(t, "CUS-1", body["customer_ref"])
		assert.Equal(t, "WAL_1", body["pay_ext_ref"])
		assert.Equal(t, "22200011122", body["holder_legal_number"])
		_, _ = w.Write([]byte(`{
			"status": true,
			"payment_reference": "PAY-9",
			"payment_ext_reference": "WAL_1",
			"holder_account_number": "0123456789",
			"holder_bank_name": "GTBank",
			"account_name": "Ada L"
		}`))
	})

	acct, err := client.IssueCollectionAccount(context.Background(), CollectionAccountRequest{
		CustomerRef:       "CUS-1",
		HolderLegalNumber: "22200011122",
		AlternateName:     "Ada L",
		BankHint:          "guaranty trust bank",
		ExternalRef:       "WAL_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "0123456789", acct.AccountNumber)
	assert.Equal(t, "GTBank", acct.BankName)
	assert.Equal(t, "PAY-9", acct.PaymentReference)
	assert.Equal(t, "WAL_1", acct.OrderReference)
	assert.NotEmpty(t, acct.Raw)
}

func TestInitiatePayout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/partner/payout/initiate_transfer/", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "600", body["receiver_amount"])
		assert.Equal(t, "TRF_1", body["transfer_ext_ref"])
		assert.Equal(t, "NGSQGT", body["source_partner_code"])
		_, _ = w.Write([]byte(`{"status": true, "payout_ref": "PO-77", "transfer_ext_ref": "TRF_1"}`))
	})

	res, err := client.InitiatePayout(context.Background(), PayoutRequest{
		TransferRef:    "TRF_1",
		ReceiverAmount: decimal.NewFromInt(600),
		SenderAmount:   decimal.NewFromInt(600),
	})
	require.NoError(t, err)
	assert.Equal(t, "PO-77", res.PayoutRef)
	assert.Equal(t, "TRF_1", res.TransferRef)
}

func TestInitiatePayoutStatusFalseIsFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": false, "message": "insufficient partner balance"}`))
	})

	_, err := client.InitiatePayout(context.Background(), PayoutRequest{TransferRef: "TRF_2"})
	var perr *PartnerError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "insufficient partner balance", perr.Message)
	assert.False(t, errors.Is(err, ErrOutcomeUnknown))
}

func TestInitiatePayoutTimeoutIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	client := NewClient(Config{BaseURL: srv.URL, Token: testToken, Timeout: 50 * time.Millisecond})

	_, err := client.InitiatePayout(context.Background(), PayoutRequest{TransferRef: "TRF_3"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutcomeUnknown))
	assert.NotContains(t, err.Error(), testToken)
}

func TestInitiatePayoutUnreadable5xxIsUnknown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := client.InitiatePayout(context.Background(), PayoutRequest{TransferRef: "TRF_4"})
	assert.True(t, errors.Is(err, ErrOutcomeUnknown))
}

func TestPayoutStatus(t *testing.T) {
	cases := []struct {
		status string
		want   PayoutState
	}{
		{status: "completed", want: PayoutStateCompleted},
		{status: "PAID", want: PayoutStateCompleted},
		{status: "failed", want: PayoutStateFailed},
		{status: "reversed", want: PayoutStateFailed},
		{status: "processing", want: PayoutStatePending},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.status, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/partner/payout/payout_status/", r.URL.Path)
				body := decodeBody(t, r)
				assert.Equal(t, "TRF_5", body["transfer_ext_ref"])
				_ = json.NewEncoder(w).Encode(map[string]any{"status": true, "payout_status": tc.status, "payout_ref": "PO-5"})
			})
			res, err := client.PayoutStatus(context.Background(), "TRF_5")
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.State)
			assert.Equal(t, "PO-5", res.PayoutRef)
		})
	}
}

func TestMockGatewayPayoutRoundTrip(t *testing.T) {
	g := NewMockGateway()
	g.FailureRate = 0
	g.MaxDelay = 0
	ctx := context.Background()

	res, err := g.InitiatePayout(ctx, PayoutRequest{TransferRef: "TRF_9"})
	require.NoError(t, err)

	status, err := g.PayoutStatus(ctx, "TRF_9")
	require.NoError(t, err)
	assert.Equal(t, PayoutStateCompleted, status.State)
	assert.Equal(t, res.PayoutRef, status.PayoutRef)

	status, err = g.PayoutStatus(ctx, "TRF_unknown")
	require.NoError(t, err)
	assert.Equal(t, PayoutStateFailed, status.State)
}
