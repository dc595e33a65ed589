package service

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/google/uuid"
)

// FeeRoutes is the static table deciding which role wallets receive a service's fee.
type FeeRoutes struct {
	routes  map[string][]string
	wallets map[string]uuid.UUID
}

// NewFeeRoutes builds the table from service→roles and role→wallet mappings.
func NewFeeRoutes(routes map[string][]string, roleWallets map[string]uuid.UUID) *FeeRoutes {
	r := &FeeRoutes{
		routes:  make(map[string][]string, len(routes)),
		wallets: make(map[string]uuid.UUID, len(roleWallets)),
	}
	for service, roles := range routes {
		normalized := make([]string, len(roles))
		for i, role := range roles {
			normalized[i] = strings.ToLower(strings.TrimSpace(role))
		}
		r.routes[strings.ToLower(strings.TrimSpace(service))] = normalized
	}
	for role, id := range roleWallets {
		r.wallets[strings.ToLower(strings.TrimSpace(role))] = id
	}
	return r
}

// Roles returns the ordered roles for service.
func (r *FeeRoutes) Roles(service string) ([]string, error) {
	roles, ok := r.routes[strings.ToLower(strings.TrimSpace(service))]
	if !ok {
		return nil, validationf("unknown service %q", service)
	}
	return roles, nil
}

// Wallet returns the wallet configured for role.
func (r *FeeRoutes) Wallet(role string) (uuid.UUID, bool) {
	id, ok := r.wallets[role]
	return id, ok && id != uuid.Nil
}

// SplitsFromAmounts translates the positional contract, where amounts[i] belongs to
// the i-th role of the service route, into named splits.
func (r *FeeRoutes) SplitsFromAmounts(service string, amounts []int64) ([]Split, error) {
	roles, err := r.Roles(service)
	if err != nil {
		return nil, err
	}
	if len(amounts) != len(roles) {
		return nil, validationf("service %q expects %d amounts (%s), got %d", service, len(roles), strings.Join(roles, ", "), len(amounts))
	}
	splits := make([]Split, len(roles))
	for i, role := range roles {
		splits[i] = Split{Role: role, Amount: amounts[i]}
	}
	return splits, nil
}

// resolve maps every role of the route onto its destination wallet, in route order,
// and returns the payment total. Roles without a split resolve with a zero amount so a
// missing wallet still aborts.
func (r *FeeRoutes) resolve(service string, splits []Split) ([]resolvedSplit, int64, error) {
	roles, err := r.Roles(service)
	if err != nil {
		return nil, 0, err
	}
	byRole := make(map[string]int64, len(splits))
	for _, sp := range splits {
		role := strings.ToLower(strings.TrimSpace(sp.Role))
		if _, dup := byRole[role]; dup {
			return nil, 0, validationf("role %q appears more than once", role)
		}
		if sp.Amount < 0 {
			return nil, 0, validationf("amount for role %q must not be negative", role)
		}
		byRole[role] = sp.Amount
	}
	for role := range byRole {
		if !slices.Contains(roles, role) {
			return nil, 0, validationf("role %q is not part of service %q", role, service)
		}
	}

	out := make([]resolvedSplit, 0, len(roles))
	var total int64
	for _, role := range roles {
		amount := byRole[role]
		if amount > math.MaxInt64-total {
			return nil, 0, validationf("payment total for service %q is out of range", service)
		}
		total += amount
		walletID, ok := r.Wallet(role)
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s wallet not found", domain.ErrNotFound, service)
		}
		out = append(out, resolvedSplit{Role: role, WalletID: walletID, Amount: amount})
	}
	return out, total, nil
}

type resolvedSplit struct {
	Role     string
	WalletID uuid.UUID
	Amount   int64
}
