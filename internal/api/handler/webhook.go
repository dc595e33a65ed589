package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/service"
	"go.uber.org/zap"
)

// WebhookHandler handles incoming funding events from the banking partner.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
	keyHeader  string
}

// NewWebhookHandler creates a handler that reads the shared key from keyHeader.
func NewWebhookHandler(webhookSvc *service.WebhookService, keyHeader string) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc, keyHeader: keyHeader}
}

// HandleBankTransfer handles POST /v1/webhooks/bank-transfer. Only a 200 tells the
// partner to stop redelivering.
func (h *WebhookHandler) HandleBankTransfer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	res, err := h.webhookSvc.HandleBankTransfer(r.Context(), body, r.Header.Get(h.keyHeader))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
		case errors.Is(err, domain.ErrValidation):
			RespondError(w, r, http.StatusBadRequest, "webhook/invalid-payload", err.Error())
		case errors.Is(err, domain.ErrNotFound):
			RespondError(w, r, http.StatusNotFound, "webhook/wallet-not-found", "wallet not found")
		default:
			zap.L().Error("process bank transfer webhook failed", zap.Error(err))
			RespondError(w, r, http.StatusInternalServerError, "webhook/processing-failed", "Failed to process webhook")
		}
		return
	}

	RespondSuccess(w, http.StatusOK, "webhook "+res.Outcome, res)
}
