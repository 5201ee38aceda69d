package fanout

import (
	"context"
	"sync"
)

// Memory delivers synchronously within one process.
type Memory struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(ctx context.Context, d Delivery) error {
	if _, err := encode(d); err != nil {
		return err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.RUnlock()
	for _, h := range handlers {
		h(d)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.handlers = append(m.handlers, h)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.handlers = nil
	return nil
}
