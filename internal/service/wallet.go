package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/events"
	"github.com/ayo6706/logistics-wallet/internal/gateway"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/observability"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultBankHint is the partner bank asked to host new collection accounts.
const defaultBankHint = "guaranty trust bank"

// WalletService provisions wallets through the banking partner and serves wallet reads.
type WalletService struct {
	store       LedgerStore
	directory   repository.Directory
	gateway     gateway.Gateway
	publisher   events.Publisher
	openingDebt int64
	bankHint    string
}

// WalletOption customizes a WalletService.
type WalletOption func(*WalletService)

// WithPublisher emits wallet.created events after provisioning.
func WithPublisher(p events.Publisher) WalletOption {
	return func(s *WalletService) { s.publisher = p }
}

// WithBankHint overrides the partner bank requested for new accounts.
func WithBankHint(hint string) WalletOption {
	return func(s *WalletService) {
		if strings.TrimSpace(hint) != "" {
			s.bankHint = hint
		}
	}
}

// NewWalletService creates a wallet service. openingDebt is the positive amount, in
// minor units, that paid-plan wallets start owing.
func NewWalletService(store LedgerStore, directory repository.Directory, gw gateway.Gateway, openingDebt int64, opts ...WalletOption) *WalletService {
	s := &WalletService{
		store:       store,
		directory:   directory,
		gateway:     gw,
		publisher:   events.NopPublisher{},
		openingDebt: openingDebt,
		bankHint:    defaultBankHint,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateWalletRequest holds the identity used to open a partner collection account.
type CreateWalletRequest struct {
	BusinessID string
	Email      string
	Phone      string
	FirstName  string
	LastName   string
	LegalID    string
	Narration  string
	Primary    bool
}

// CreateWallet registers the holder with the partner, issues a permanent collection
// account and persists the wallet. Paid-plan wallets open with a debt recorded as an
// opening_balance transaction.
func (s *WalletService) CreateWallet(ctx context.Context, req CreateWalletRequest) (*models.Wallet, error) {
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := requireFields(map[string]string{
		"business_id": req.BusinessID,
		"email":       req.Email,
		"phone":       req.Phone,
		"first_name":  req.FirstName,
		"last_name":   req.LastName,
		"legal_id":    req.LegalID,
	}); err != nil {
		return nil, err
	}

	if _, err := s.directory.GetBusiness(ctx, req.BusinessID); err != nil {
		return nil, fmt.Errorf("creating wallet: business %s: %w", req.BusinessID, err)
	}
	// Plan is resolved before any partner call so a missing user cannot leave an
	// orphaned account on the partner side.
	user, err := s.directory.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("creating wallet: user %s: %w", req.Email, err)
	}

	txRef := domain.NewReference(domain.RefPrefixWallet)
	customerRef, err := s.gateway.RegisterCustomer(ctx, gateway.CustomerProfile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("creating wallet: %w", err)
	}

	account, err := s.gateway.IssueCollectionAccount(ctx, gateway.CollectionAccountRequest{
		CustomerRef:       customerRef,
		HolderLegalNumber: req.LegalID,
		AlternateName:     strings.TrimSpace(req.FirstName + " " + req.LastName),
		BankHint:          s.bankHint,
		ExternalRef:       txRef,
	})
	if err != nil {
		zap.L().Error("collection account issuance failed",
			zap.String("business_id", req.BusinessID),
			zap.String("customer_ref", customerRef),
			zap.String("tx_ref", txRef),
			zap.Error(err),
		)
		return nil, fmt.Errorf("creating wallet: %w", err)
	}

	orderRef := account.OrderReference
	if orderRef == "" {
		orderRef = txRef
	}
	wallet := &models.Wallet{
		ID:            uuid.New(),
		BusinessID:    req.BusinessID,
		Currency:      domain.CurrencyNGN,
		AccountNumber: account.AccountNumber,
		BankName:      account.BankName,
		AccountName:   account.AccountName,
		TxRef:         txRef,
		OrderRef:      orderRef,
		PaymentRef:    account.PaymentReference,
		CustomerRef:   customerRef,
		Narration:     req.Narration,
		Primary:       req.Primary,
		AccountStatus: domain.AccountStatusActive,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		PhoneNumber:   req.Phone,
	}

	openingDebt := int64(0)
	if !strings.EqualFold(user.Plan, domain.PlanFree) {
		openingDebt = s.openingDebt
	}

	err = s.store.RunInTx(ctx, func(l repository.Ledger) error {
		if err := l.InsertWallet(ctx, wallet); err != nil {
			return err
		}
		if openingDebt == 0 {
			return nil
		}
		balance, err := l.AdjustBalance(ctx, wallet.ID, -openingDebt, nil)
		if err != nil {
			return err
		}
		wallet.Balance = balance
		return l.InsertTransaction(ctx, &models.Transaction{
			WalletID:  wallet.ID,
			TxID:      domain.NewTxID(),
			TxRef:     txRef,
			Amount:    openingDebt,
			Currency:  wallet.Currency,
			Type:      domain.TxTypeOpeningBalance,
			Direction: domain.DirectionDebit,
			Status:    domain.TxStatusSuccessful,
			Meta:      mustJSON(map[string]string{"reason": "paid_plan_onboarding_debt", "plan": user.Plan}),
		})
	})
	if err != nil {
		observability.IncrementLedgerOperation("create_wallet", "error")
		zap.L().Error("partner account issued but wallet persistence failed",
			zap.String("business_id", req.BusinessID),
			zap.String("account_number", account.AccountNumber),
			zap.String("tx_ref", txRef),
			zap.Error(err),
		)
		return nil, fmt.Errorf("creating wallet: %w", err)
	}
	observability.IncrementLedgerOperation("create_wallet", "ok")

	events.Emit(ctx, s.publisher, zap.L(), events.WalletCreated, wallet.ID.String(), map[string]any{
		"wallet_id":      wallet.ID,
		"business_id":    wallet.BusinessID,
		"account_number": wallet.AccountNumber,
		"bank_name":      wallet.BankName,
		"balance":        wallet.Balance,
		"currency":       wallet.Currency,
	})
	return wallet, nil
}

// GetWallet returns a wallet by id.
func (s *WalletService) GetWallet(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	w, err := s.store.Ledger().GetWallet(ctx, id)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Balance is a point-in-time view of a wallet's funds.
type Balance struct {
	WalletID  uuid.UUID `json:"wallet_id"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	Held      int64     `json:"held"`
	Available int64     `json:"available"`
}

// GetBalance returns the balance, the amount held by in-flight payouts and what remains spendable.
func (s *WalletService) GetBalance(ctx context.Context, id uuid.UUID) (*Balance, error) {
	w, err := s.store.Ledger().GetWallet(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Balance{
		WalletID:  w.ID,
		Currency:  w.Currency,
		Balance:   w.Balance,
		Held:      w.HeldAmount,
		Available: w.Available(),
	}, nil
}

// ListBusinessWallets returns every wallet owned by a business, oldest first.
func (s *WalletService) ListBusinessWallets(ctx context.Context, businessID string) ([]models.Wallet, error) {
	if strings.TrimSpace(businessID) == "" {
		return nil, validationf("business_id is required")
	}
	return s.store.Ledger().ListWalletsByBusiness(ctx, businessID)
}

// ListTransactions returns a wallet's transactions, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, walletID uuid.UUID, page repository.Page) ([]models.Transaction, error) {
	if _, err := s.store.Ledger().GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.store.Ledger().ListTransactionsByWallet(ctx, walletID, page)
}

// ListAllWallets is the admin view over every wallet.
func (s *WalletService) ListAllWallets(ctx context.Context, page repository.Page) ([]models.Wallet, error) {
	return s.store.Ledger().ListWallets(ctx, page)
}

// ListAllTransactions is the admin view over every transaction.
func (s *WalletService) ListAllTransactions(ctx context.Context, page repository.Page) ([]models.Transaction, error) {
	return s.store.Ledger().ListTransactions(ctx, page)
}

// TransactionsByTxID returns every leg recorded under one transaction id, such as the
// payer debit and service credits of a split. An unknown id is ErrNotFound.
func (s *WalletService) TransactionsByTxID(ctx context.Context, txID string) ([]models.Transaction, error) {
	txID = strings.TrimSpace(txID)
	if txID == "" {
		return nil, validationf("tx_id is required")
	}
	txs, err := s.store.Ledger().ListTransactionsByTxID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("transaction %q: %w", txID, domain.ErrNotFound)
	}
	return txs, nil
}

// OwnedBy reports whether the wallet belongs to businessID.
func (s *WalletService) OwnedBy(ctx context.Context, walletID uuid.UUID, businessID string) (bool, error) {
	w, err := s.store.Ledger().GetWallet(ctx, walletID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("load wallet owner: %w", err)
	}
	return w.BusinessID == businessID, nil
}
