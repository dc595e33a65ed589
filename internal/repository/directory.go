package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/domain"
	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/jackc/pgx/v5"
)

func (q *Queries) GetBusiness(ctx context.Context, id string) (models.Business, error) {
	var b models.Business
	err := q.db.QueryRow(ctx, `SELECT id, name, owner_id, created_at FROM businesses WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.OwnerID, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Business{}, fmt.Errorf("business %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return models.Business{}, fmt.Errorf("get business: %w", err)
	}
	return b, nil
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := q.db.QueryRow(ctx, `SELECT id, email, plan, created_at FROM users WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email)).
		Scan(&u.ID, &u.Email, &u.Plan, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpsertBusiness mirrors a business from the owning service.
func (q *Queries) UpsertBusiness(ctx context.Context, b *models.Business) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO businesses (id, name, owner_id) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, owner_id = EXCLUDED.owner_id
		RETURNING created_at`,
		b.ID, b.Name, b.OwnerID,
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert business: %w", err)
	}
	return nil
}

// UpsertUser mirrors a user from the owning service.
func (q *Queries) UpsertUser(ctx context.Context, u *models.User) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO users (id, email, plan) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, plan = EXCLUDED.plan
		RETURNING created_at`,
		u.ID, u.Email, u.Plan,
	).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
