package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHandler exposes the split-payment engine.
type PaymentHandler struct {
	payments *service.PaymentService
	wallets  *service.WalletService
}

func NewPaymentHandler(payments *service.PaymentService, wallets *service.WalletService) *PaymentHandler {
	return &PaymentHandler{payments: payments, wallets: wallets}
}

type splitInput struct {
	Role   string          `json:"role"`
	Amount decimal.Decimal `json:"amount"`
}

// createPaymentRequest accepts either named splits or the positional amounts list,
// whose i-th entry belongs to the i-th role of the service's fee route. Amounts are
// major units.
type createPaymentRequest struct {
	WalletID   string            `json:"wallet_id"`
	Service    string            `json:"service"`
	Splits     []splitInput      `json:"splits"`
	Amounts    []decimal.Decimal `json:"amounts"`
	Meta       json.RawMessage   `json:"meta"`
	ShipmentID *string           `json:"shipment_id"`
}

// CreatePayment handles POST /v1/payments.
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	who, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	walletID, err := uuid.Parse(strings.TrimSpace(req.WalletID))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-wallet-id", "Invalid wallet_id")
		return
	}
	if len(req.Splits) > 0 && len(req.Amounts) > 0 {
		RespondError(w, r, http.StatusBadRequest, "payment/ambiguous-splits", "send either splits or amounts, not both")
		return
	}
	if !authorized(w, r, h.wallets, who, walletID) {
		return
	}

	splits, err := h.toSplits(req)
	if err != nil {
		respondServiceError(w, r, "payment", err)
		return
	}

	result, err := h.payments.ProcessPayment(r.Context(), service.PaymentRequest{
		WalletID:   walletID,
		Service:    req.Service,
		Splits:     splits,
		Meta:       req.Meta,
		ShipmentID: req.ShipmentID,
	})
	if err != nil {
		respondServiceError(w, r, "payment", err)
		return
	}
	RespondSuccess(w, http.StatusOK, "payment processed", result)
}

func (h *PaymentHandler) toSplits(req createPaymentRequest) ([]service.Split, error) {
	if len(req.Amounts) > 0 {
		amounts := make([]int64, len(req.Amounts))
		for i, a := range req.Amounts {
			minor, err := domain.FromDecimal(a)
			if err != nil {
				return nil, err
			}
			amounts[i] = minor
		}
		return h.payments.Routes().SplitsFromAmounts(req.Service, amounts)
	}
	splits := make([]service.Split, len(req.Splits))
	for i, s := range req.Splits {
		minor, err := domain.FromDecimal(s.Amount)
		if err != nil {
			return nil, err
		}
		splits[i] = service.Split{Role: s.Role, Amount: minor}
	}
	return splits, nil
}
