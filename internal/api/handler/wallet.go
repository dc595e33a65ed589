package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/ayo6706/logistics-wallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type WalletHandler struct {
	svc *service.WalletService
}

func NewWalletHandler(svc *service.WalletService) *WalletHandler {
	return &WalletHandler{svc: svc}
}

type createWalletRequest struct {
	BusinessID string `json:"business_id"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	LegalID    string `json:"legal_id"`
	Narration  string `json:"narration"`
	Primary    bool   `json:"primary"`
}

// CreateWallet handles POST /v1/wallets.
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	who, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req createWalletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	if req.BusinessID == "" && !who.IsAdmin {
		req.BusinessID = who.BusinessID
	}
	if !who.IsAdmin && req.BusinessID != who.BusinessID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	wallet, err := h.svc.CreateWallet(r.Context(), service.CreateWalletRequest{
		BusinessID: req.BusinessID,
		Email:      req.Email,
		Phone:      req.Phone,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		LegalID:    req.LegalID,
		Narration:  req.Narration,
		Primary:    req.Primary,
	})
	if err != nil {
		respondServiceError(w, r, "wallet", err)
		return
	}
	RespondSuccess(w, http.StatusCreated, "wallet created", wallet)
}

// GetWallet handles GET /v1/wallets/{id}.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizeWallet(w, r)
	if !ok {
		return
	}
	wallet, err := h.svc.GetWallet(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, "wallet", err)
		return
	}
	RespondSuccess(w, http.StatusOK, "wallet retrieved", wallet)
}

// GetBalance handles GET /v1/wallets/{id}/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizeWallet(w, r)
	if !ok {
		return
	}
	balance, err := h.svc.GetBalance(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, "wallet", err)
		return
	}
	RespondSuccess(w, http.StatusOK, "balance retrieved", balance)
}

// ListTransactions handles GET /v1/wallets/{id}/transactions, newest first.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorizeWallet(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-page", err.Error())
		return
	}
	txs, err := h.svc.ListTransactions(r.Context(), id, page)
	if err != nil {
		respondServiceError(w, r, "wallet", err)
		return
	}
	RespondSuccess(w, http.StatusOK, "transactions retrieved", listing(txs, page))
}

// ListBusinessWallets handles GET /v1/businesses/{businessID}/wallets.
func (h *WalletHandler) ListBusinessWallets(w http.ResponseWriter, r *http.Request) {
	who, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	businessID := chi.URLParam(r, "businessID")
	if !who.IsAdmin && businessID != who.BusinessID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}
	wallets, err := h.svc.ListBusinessWallets(r.Context(), businessID)
	if err != nil {
		respondServiceError(w, r, "wallet", err)
		return
	}
	if wallets == nil {
		wallets = []models.Wallet{}
	}
	RespondSuccess(w, http.StatusOK, "wallets retrieved", wallets)
}

// ListAllWallets handles GET /v1/admin/wallets.
func (h *WalletHandler) ListAllWallets(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-page", err.Error())
		return
	}
	wallets, err := h.svc.ListAllWallets(r.Context(), page)
	if err != nil {
		respondServiceError(w, r, "wallet", err)
		return
	}
	RespondSuccess(w, http.StatusOK, "wallets retrieved", listing(wallets, page))
}

// ListAllTransactions handles GET /v1/admin/transactions.
func (h *WalletHandler) ListAllTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-page", err.Error())
		return
	}
	txs, err := h.svc.ListAllTransactions(r.Context(), page)
	if err != nil {
		respondServiceError(w, r, "transaction", err)
		return
	}
	RespondSuccess(w, http.StatusOK, "transactions retrieved", listing(txs, page))
}

// GetTransactionLegs handles GET /v1/admin/transactions/{txID}.
func (h *WalletHandler) GetTransactionLegs(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.TransactionsByTxID(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		respondServiceError(w, r, "transaction", err)
		return
	}
	RespondSuccess(w, http.StatusOK, "transaction retrieved", map[string]any{
		"tx_id": txs[0].TxID,
		"legs":  txs,
	})
}

// authorizeWallet parses the {id} param and checks the caller's business owns it.
func (h *WalletHandler) authorizeWallet(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	who, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-wallet-id", "Invalid wallet ID")
		return uuid.Nil, false
	}
	if !authorized(w, r, h.svc, who, id) {
		return uuid.Nil, false
	}
	return id, true
}

func authorized(w http.ResponseWriter, r *http.Request, wallets *service.WalletService, who actor, walletID uuid.UUID) bool {
	if who.IsAdmin {
		return true
	}
	owned, err := wallets.OwnedBy(r.Context(), walletID, who.BusinessID)
	if err != nil {
		respondServiceError(w, r, "wallet", err)
		return false
	}
	if !owned || who.BusinessID == "" {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return false
	}
	return true
}

func listing[T any](items []T, page repository.Page) map[string]any {
	if items == nil {
		items = []T{}
	}
	return map[string]any{
		"items":  items,
		"limit":  page.Limit,
		"offset": page.Offset,
		"count":  len(items),
	}
}
