package mq

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/ksuid"
)

// Memory is an in-process backend. Publish delivers synchronously to every
// subscriber of the channel; messages published with no subscriber are dropped.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64
	closed bool
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[uint64]Handler)}
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return "", errors.New("memory backend closed")
	}
	handlers := make([]Handler, 0, len(m.subs[channel]))
	for _, h := range m.subs[channel] {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	msg := Message{ID: ksuid.New().String(), Data: data, Attributes: attrs}
	var errs []error
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return msg.ID, errors.Join(errs...)
}

// Subscribe registers handler and blocks until ctx is done.
func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	m.mu.Lock()
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[uint64]Handler)
	}
	m.nextID++
	id := m.nextID
	m.subs[channel][id] = handler
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.subs[channel], id)
	m.mu.Unlock()
	return ctx.Err()
}

// Subscribers reports how many handlers are registered on channel.
func (m *Memory) Subscribers(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[channel])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
