package inventory

import (
	"context"
	"strings"
	"sync"

	"github.com/dids/devterm/internal/client"
)

// MemoryStore keeps devices in a map. Callers always get copies.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]client.Device
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]client.Device),
	}
}

func (s *MemoryStore) List(ctx context.Context) ([]client.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]client.Device, 0, len(s.devices))
	for _, d := range s.devices {
		result = append(result, d)
	}
	sortDevices(result)
	return result, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (client.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return client.Device{}, ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) Put(ctx context.Context, d client.Device) error {
	key := d.Identity()
	if key == "" {
		return ErrNoIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[key] = d
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id, status string) (client.Device, error) {
	if !ValidStatus(status) {
		return client.Device{}, ErrBadStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return client.Device{}, ErrNotFound
	}
	d.Status = strings.ToLower(status)
	s.devices[id] = d
	return d, nil
}

func (s *MemoryStore) Close() error { return nil }
