package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// MemoryIdempotencyKeys mirrors the idempotency_keys queries in process memory. Missing
// or already-reserved keys report pgx.ErrNoRows, as the Postgres queries do.
type MemoryIdempotencyKeys struct {
	mu   sync.Mutex
	keys map[string]IdempotencyKey
	now  func() time.Time
}

func NewMemoryIdempotencyKeys() *MemoryIdempotencyKeys {
	return &MemoryIdempotencyKeys{keys: make(map[string]IdempotencyKey), now: time.Now}
}

func (m *MemoryIdempotencyKeys) GetIdempotencyKey(_ context.Context, key string) (IdempotencyKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.keys[key]
	if !ok {
		return IdempotencyKey{}, pgx.ErrNoRows
	}
	return row, nil
}

func (m *MemoryIdempotencyKeys) ReserveIdempotencyKey(_ context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.keys[arg.IdempotencyKey]; taken {
		return IdempotencyKey{}, pgx.ErrNoRows
	}
	now := m.now()
	row := IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		InProgress:     true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.keys[arg.IdempotencyKey] = row
	return row, nil
}

func (m *MemoryIdempotencyKeys) FinalizeIdempotencyKey(_ context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.keys[arg.IdempotencyKey]
	if !ok || row.RequestHash != arg.RequestHash {
		return IdempotencyKey{}, pgx.ErrNoRows
	}
	row.InProgress = false
	row.ResponseStatus = arg.ResponseStatus
	row.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	row.ContentType = arg.ContentType
	row.UpdatedAt = m.now()
	m.keys[arg.IdempotencyKey] = row
	return row, nil
}
