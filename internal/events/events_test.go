package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, evts ...Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, evts...)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func TestToMessages(t *testing.T) {
	evt, err := New(WalletFunded, "wallet-1", map[string]any{"amount": 5000})
	require.NoError(t, err)

	msgs, err := toMessages([]Event{evt})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "wallet-1", string(msgs[0].Key))
	assert.Equal(t, WalletFunded, string(msgs[0].Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	assert.Equal(t, evt.ID, decoded.ID)
	assert.JSONEq(t, `{"amount":5000}`, string(decoded.Data))
}

func TestEmit(t *testing.T) {
	rec := &recordingPublisher{}
	Emit(context.Background(), rec, zap.NewNop(), PayoutCompleted, "wallet-2", map[string]string{"ref": "TRF_1"})
	require.Len(t, rec.events, 1)
	assert.Equal(t, PayoutCompleted, rec.events[0].Type)
	assert.Equal(t, "wallet-2", rec.events[0].Key)
	assert.NotEmpty(t, rec.events[0].ID)
}

func TestEmitSwallowsErrors(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("broker down")}
	assert.NotPanics(t, func() {
		Emit(context.Background(), rec, zap.NewNop(), PayoutFailed, "wallet-3", nil)
		Emit(context.Background(), nil, nil, PayoutFailed, "wallet-3", nil)
	})
	assert.Empty(t, rec.events)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background()))
	assert.NoError(t, p.Close())
}
