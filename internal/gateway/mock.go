package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockGateway simulates the banking partner for local runs. Payouts fail with
// probability FailureRate and each call sleeps up to MaxDelay.
type MockGateway struct {
	FailureRate float64
	MaxDelay    time.Duration

	mu      sync.Mutex
	seq     int
	payouts map[string]string // transfer ref -> payout ref
}

// NewMockGateway creates a new MockGateway with default settings.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		FailureRate: 0.1,
		MaxDelay:    500 * time.Millisecond,
		payouts:     make(map[string]string),
	}
}

func (g *MockGateway) wait(ctx context.Context) error {
	if g.MaxDelay <= 0 {
		return nil
	}
	delay := time.Duration(rand.Int63n(int64(g.MaxDelay)))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gateway call canceled: %w: %v", ErrOutcomeUnknown, ctx.Err())
	}
}

func (g *MockGateway) nextRef(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%s-%05d", prefix, time.Now().Format("20060102-150405"), g.seq)
}

func (g *MockGateway) RegisterCustomer(ctx context.Context, p CustomerProfile) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	if p.Email == "" {
		return "", &PartnerError{Op: "register_customer", Message: "customer_email is required"}
	}
	return g.nextRef("MOCK-CUS"), nil
}

func (g *MockGateway) IssueCollectionAccount(ctx context.Context, r CollectionAccountRequest) (*CollectionAccount, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.seq++
	number := fmt.Sprintf("90%08d", g.seq)
	g.mu.Unlock()
	raw, _ := json.Marshal(map[string]any{"status": true, "holder_account_number": number, "pay_ext_ref": r.ExternalRef})
	return &CollectionAccount{
		AccountNumber:    number,
		BankName:         "Mock Bank",
		AccountName:      r.AlternateName,
		PaymentReference: g.nextRef("MOCK-PAY"),
		OrderReference:   r.ExternalRef,
		Raw:              raw,
	}, nil
}

func (g *MockGateway) InitiatePayout(ctx context.Context, r PayoutRequest) (*PayoutResult, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if rand.Float64() < g.FailureRate {
		return nil, &PartnerError{Op: "initiate_payout", Message: "gateway temporarily unavailable"}
	}
	ref := g.nextRef("MOCK-PO")
	g.mu.Lock()
	g.payouts[r.TransferRef] = ref
	g.mu.Unlock()
	raw, _ := json.Marshal(map[string]any{"status": true, "payout_ref": ref, "transfer_ext_ref": r.TransferRef})
	return &PayoutResult{PayoutRef: ref, TransferRef: r.TransferRef, Raw: raw}, nil
}

func (g *MockGateway) PayoutStatus(ctx context.Context, transferRef string) (*PayoutStatusResult, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	ref, ok := g.payouts[transferRef]
	g.mu.Unlock()
	if !ok {
		return &PayoutStatusResult{State: PayoutStateFailed, Message: "unknown transfer reference"}, nil
	}
	return &PayoutStatusResult{State: PayoutStateCompleted, PayoutRef: ref}, nil
}
