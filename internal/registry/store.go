package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentx-labs/mcpx/internal/host"
)

// ErrNotFound is returned when an id is not in the registry.
var ErrNotFound = errors.New("server not found in registry")

// Store is the durable id → ServerEntry map.
type Store struct {
	host host.Services
	path string
	now  func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces time.Now (useful for testing).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store persisted at path through svc.
func NewStore(svc host.Services, path string, opts ...StoreOption) *Store {
	s := &Store{host: svc, path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the registry file location.
func (s *Store) Path() string { return s.path }

// List returns every entry in file order.
func (s *Store) List(ctx context.Context) ([]ServerEntry, error) {
	mu := host.PathLock(s.path)
	mu.Lock()
	defer mu.Unlock()
	return s.load(ctx)
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id string) (ServerEntry, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return ServerEntry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return ServerEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Upsert inserts e or replaces the entry with the same id. InstalledAt is
// kept from the existing entry; UpdatedAt is always set to now. The stored
// entry is returned.
func (s *Store) Upsert(ctx context.Context, e ServerEntry) (ServerEntry, error) {
	if e.Status == "" {
		e.Status = StatusInstalled
	}
	if err := e.Validate(); err != nil {
		return ServerEntry{}, err
	}

	var stored ServerEntry
	err := s.update(ctx, func(entries []ServerEntry) ([]ServerEntry, error) {
		now := s.now().UTC()
		e = e.Clone()
		e.UpdatedAt = now
		for i := range entries {
			if entries[i].ID == e.ID {
				e.InstalledAt = entries[i].InstalledAt
				entries[i] = e
				stored = e
				return entries, nil
			}
		}
		e.InstalledAt = now
		stored = e
		return append(entries, e), nil
	})
	return stored, err
}

// MarkRemoved sets the entry's status to removed and returns it.
func (s *Store) MarkRemoved(ctx context.Context, id string) (ServerEntry, error) {
	var out ServerEntry
	err := s.update(ctx, func(entries []ServerEntry) ([]ServerEntry, error) {
		for i := range entries {
			if entries[i].ID == id {
				entries[i].Status = StatusRemoved
				entries[i].UpdatedAt = s.now().UTC()
				out = entries[i]
				return entries, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	})
	return out, err
}

// Remove deletes the entry with id.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.update(ctx, func(entries []ServerEntry) ([]ServerEntry, error) {
		for i := range entries {
			if entries[i].ID == id {
				return append(entries[:i], entries[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	})
}

// update runs a read-modify-write cycle under the path lock.
func (s *Store) update(ctx context.Context, fn func([]ServerEntry) ([]ServerEntry, error)) error {
	mu := host.PathLock(s.path)
	mu.Lock()
	defer mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return err
	}
	entries, err = fn(entries)
	if err != nil {
		return err
	}
	return s.save(ctx, entries)
}

func (s *Store) load(ctx context.Context) ([]ServerEntry, error) {
	if !s.host.Exists(ctx, s.path) {
		return []ServerEntry{}, nil
	}
	data, err := s.host.ReadFile(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	var entries []ServerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", s.path, err)
	}
	if entries == nil {
		entries = []ServerEntry{}
	}
	return entries, nil
}

func (s *Store) save(ctx context.Context, entries []ServerEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	data = append(data, '\n')
	if err := s.host.EnsureDir(ctx, host.Dir(s.path)); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}
	if err := host.WriteFileAtomic(ctx, s.host, s.path, data); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	return nil
}
