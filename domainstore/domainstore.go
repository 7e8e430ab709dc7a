// Package domainstore persists the frozen-domain mapping as one JSON record
// ("frozenDomains") in a kvstore namespace.
//
// Reads never fail: an absent, unreadable or corrupt record reads as the
// empty mapping. Writes overwrite the whole record. Update serializes
// read-modify-write sequences inside this process so two toggles cannot
// lose each other's change; writers in other processes are expected to
// follow the same whole-record discipline.
package domainstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/tabfreeze/kvstore"
	"github.com/hazyhaar/tabfreeze/policy"
)

// Key is the record name holding the mapping.
const Key = "frozenDomains"

// Store reads and writes the frozen-domain record.
type Store struct {
	kv     kvstore.Store
	logger *slog.Logger
	mu     sync.Mutex // serializes Update
}

// New wraps kv. A nil logger uses slog.Default().
func New(kv kvstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// Get returns the persisted mapping, or an empty one.
func (s *Store) Get(ctx context.Context) policy.Domains {
	d, err := s.read(ctx)
	if err != nil {
		s.logger.Warn("domainstore: read failed, using empty set", "error", err)
		return policy.Domains{}
	}
	return d
}

// read is Get without the fallback: only an absent or corrupt record reads
// as empty, backend errors are returned.
func (s *Store) read(ctx context.Context) (policy.Domains, error) {
	data, err := s.kv.Get(ctx, Key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return policy.Domains{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("domainstore: read: %w", err)
	}
	var d policy.Domains
	if err := json.Unmarshal(data, &d); err != nil {
		s.logger.Warn("domainstore: corrupt record, using empty set", "error", err)
		return policy.Domains{}, nil
	}
	if d == nil {
		d = policy.Domains{}
	}
	return d, nil
}

// Set overwrites the record with domains. False entries are dropped.
func (s *Store) Set(ctx context.Context, domains policy.Domains) error {
	clean := make(policy.Domains, len(domains))
	for host, on := range domains {
		if on {
			clean[host] = true
		}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("domainstore: marshal: %w", err)
	}
	if err := s.kv.Set(ctx, Key, data); err != nil {
		return fmt.Errorf("domainstore: write: %w", err)
	}
	return nil
}

// Update runs fn on a private copy of the current mapping and persists the
// result. Concurrent Updates in this process run one at a time. If the
// record cannot be read, or fn returns an error, nothing is written.
func (s *Store) Update(ctx context.Context, fn func(policy.Domains) (policy.Domains, error)) (policy.Domains, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = policy.Domains{}
	}
	if err := s.Set(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Remove unfreezes host. Returns whether it was frozen.
func (s *Store) Remove(ctx context.Context, host string) (bool, error) {
	var was bool
	_, err := s.Update(ctx, func(d policy.Domains) (policy.Domains, error) {
		was = d[host]
		delete(d, host)
		return d, nil
	})
	return was, err
}

// Clear drops every frozen domain.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.Update(ctx, func(policy.Domains) (policy.Domains, error) {
		return policy.Domains{}, nil
	})
	return err
}

// Revision forwards the backend revision, used to detect external writers.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	return s.kv.Revision(ctx)
}
