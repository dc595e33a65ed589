package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutHandler handles HTTP requests for payouts.
type PayoutHandler struct {
	payouts *service.PayoutService
	wallets *service.WalletService
}

// NewPayoutHandler creates a new PayoutHandler instance.
func NewPayoutHandler(payouts *service.PayoutService, wallets *service.WalletService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, wallets: wallets}
}

// CreatePayoutRequest mirrors the partner payout fields. Amounts are major units and
// may be sent as JSON strings or numbers.
type CreatePayoutRequest struct {
	WalletID            string           `json:"wallet_id"`
	ReceiverAmount      decimal.Decimal  `json:"receiver_amount"`
	ReceiverCurrency    string           `json:"receiver_currency"`
	SenderAmount        *decimal.Decimal `json:"sender_amount"`
	SenderCurrency      string           `json:"sender_currency"`
	TransferMethod      string           `json:"transfer_method"`
	ReceiverType        string           `json:"transfer_receiver_type"`
	ReceiverAccountNum  string           `json:"receiver_account_num"`
	ReceiverAccountName string           `json:"receiver_account_name"`
	ReceiverSortCode    string           `json:"receiver_sort_code"`
	ReceiverCountryCode string           `json:"receiver_country_code"`
	Meta                json.RawMessage  `json:"meta"`
}

// CreatePayout handles POST /v1/payouts. A confirmed payout returns 200. A payout whose
// partner outcome is unknown, or whose confirmation is not yet on the ledger, returns 202
// and is finished by reconciliation.
func (h *PayoutHandler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	who, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req CreatePayoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	walletID, err := uuid.Parse(strings.TrimSpace(req.WalletID))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-wallet-id", "Invalid wallet_id")
		return
	}
	if !authorized(w, r, h.wallets, who, walletID) {
		return
	}

	senderAmount := ""
	if req.SenderAmount != nil {
		senderAmount = req.SenderAmount.String()
	}
	outcome, err := h.payouts.Payout(r.Context(), service.PayoutRequest{
		WalletID:         walletID,
		ReceiverAmount:   req.ReceiverAmount.String(),
		ReceiverCurrency: req.ReceiverCurrency,
		SenderAmount:     senderAmount,
		SenderCurrency:   req.SenderCurrency,
		TransferMethod:   req.TransferMethod,
		ReceiverType:     req.ReceiverType,
		AccountNumber:    req.ReceiverAccountNum,
		AccountName:      req.ReceiverAccountName,
		SortCode:         req.ReceiverSortCode,
		CountryCode:      req.ReceiverCountryCode,
		Meta:             req.Meta,
	})
	if err != nil {
		respondServiceError(w, r, "payout", err)
		return
	}

	if outcome.Status == service.PayoutStatusPending {
		RespondSuccess(w, http.StatusAccepted, "payout pending reconciliation", outcome)
		return
	}
	RespondSuccess(w, http.StatusOK, "payout successful", outcome)
}
