package redis

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/pkg/logger"
)

func TestNewBrokerRejectsBadURL(t *testing.T) {
	_, err := newBroker(Config{URL: "not a url"}, logger.Nop())
	assert.Error(t, err)
}

// Port 1 on loopback refuses connections, so every publish fails fast.
func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, err := newBroker(Config{
		URL:                "redis://127.0.0.1:1/0",
		MaxRetries:         -1,
		DialTimeout:        100 * time.Millisecond,
		BreakerMaxFailures: 2,
		BreakerTimeout:     time.Minute,
	}, logger.Nop())
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		err := b.Publish(ctx, "appointment.booked", []byte(`{}`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err = b.Publish(ctx, "appointment.booked", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
