package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerDelivers(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := b.Subscribe(ctx, "appointment.booked")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "appointment.booked", []byte(`{"a":1}`)))

	select {
	case msg := <-msgs:
		assert.JSONEq(t, `{"a":1}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	assert.Len(t, b.Published("appointment.booked"), 1)
	assert.Empty(t, b.Published("other"))
}

func TestMemoryBrokerFailureAndClose(t *testing.T) {
	b := NewMemoryBroker()
	down := errors.New("down")
	b.FailWith = func(string) error { return down }

	assert.ErrorIs(t, b.Publish(context.Background(), "x", nil), down)
	assert.Empty(t, b.Published("x"))

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Publish(context.Background(), "x", nil), ErrClosed)
}
