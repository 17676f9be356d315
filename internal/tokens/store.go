// Package tokens persists the device push token and its rotation epoch.
// Push payloads carry the epoch they were minted against; payloads for a
// rotated-away epoch are stale and must be dropped.
package tokens

import (
	"context"
	"errors"
	"sync"
)

var ErrNoToken = errors.New("tokens: no token registered")

// Store is the persistence contract for the device token registration.
type Store interface {
	// Save records a new token and returns the new epoch. Saving the same
	// token again still bumps the epoch; rotation is what invalidates
	// outstanding pushes.
	Save(ctx context.Context, token []byte) (epoch int64, err error)

	// Current returns the registered token and its epoch.
	Current(ctx context.Context) (token []byte, epoch int64, err error)

	// Clear removes the registration. The epoch is not reset so pushes
	// minted before the clear stay invalid.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the registration in-process. Used in tests and in
// deployments without redis.
type MemoryStore struct {
	mu    sync.Mutex
	token []byte
	epoch int64
	set   bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Save(_ context.Context, token []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.token = append([]byte(nil), token...)
	s.set = true
	return s.epoch, nil
}

func (s *MemoryStore) Current(context.Context) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil, s.epoch, ErrNoToken
	}
	return append([]byte(nil), s.token...), s.epoch, nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	s.set = false
	return nil
}
