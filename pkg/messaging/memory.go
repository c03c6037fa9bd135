package messaging

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a closed MemoryBroker.
var ErrClosed = errors.New("broker closed")

// MemoryBroker delivers messages in process. It backs local runs without
// Redis and tests.
type MemoryBroker struct {
	mu          sync.Mutex
	closed      bool
	published   map[string][][]byte
	subscribers map[string][]chan []byte
	// FailWith, when set, is returned by Publish instead of delivering.
	FailWith func(channel string) error
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		published:   map[string][][]byte{},
		subscribers: map[string][]chan []byte{},
	}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.FailWith != nil {
		if err := b.FailWith(channel); err != nil {
			return err
		}
	}
	msg := append([]byte(nil), payload...)
	b.published[channel] = append(b.published[channel], msg)
	for _, ch := range b.subscribers[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	ch := make(chan []byte, 100)
	b.subscribers[channel] = append(b.subscribers[channel], ch)

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[channel]
		for i, c := range subs {
			if c == ch {
				b.subscribers[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch, nil
}

// Published returns what was published on channel, in order.
func (b *MemoryBroker) Published(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.published[channel]...)
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for channel, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, channel)
	}
	return nil
}
