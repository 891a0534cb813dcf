package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
)

// MemoryLedger is an in-memory implementation of the Ledger interface
type MemoryLedger struct {
	records map[string]*core.SessionRecord // keyed by refresh token
	access  map[string]string              // access token -> refresh token
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryLedger creates a new in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return NewMemoryLedgerWithClock(time.Now)
}

// NewMemoryLedgerWithClock creates an in-memory ledger reading time from now
func NewMemoryLedgerWithClock(now func() time.Time) *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]*core.SessionRecord),
		access:  make(map[string]string),
		now:     now,
	}
}

var _ ports.Ledger = (*MemoryLedger)(nil)

// StartSession inserts a new open record
func (s *MemoryLedger) StartSession(ctx context.Context, record core.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insert(record)
}

// IsOpen checks if the session of an access token is still open
func (s *MemoryLedger) IsOpen(ctx context.Context, access string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refresh, ok := s.access[access]
	if !ok {
		return false, nil
	}
	return s.records[refresh].Usable(s.now()), nil
}

// IsRefreshable checks if a refresh token may still be rotated
func (s *MemoryLedger) IsRefreshable(ctx context.Context, refresh string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[refresh]
	return ok && record.Usable(s.now()), nil
}

// CheckTuple checks if both tokens belong to the same open record
func (s *MemoryLedger) CheckTuple(ctx context.Context, access, refresh string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[refresh]
	if !ok {
		return false, nil
	}
	return record.Access == access && record.State == core.SessionOpen, nil
}

// CloseSession marks the record of a refresh token closed
func (s *MemoryLedger) CloseSession(ctx context.Context, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[refresh]; ok {
		record.State = core.SessionClosed
	}
	return nil
}

// Rotate closes the old record and inserts next under one lock
func (s *MemoryLedger) Rotate(ctx context.Context, oldRefresh string, next core.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[oldRefresh]
	if !ok || !record.Usable(s.now()) {
		return core.ErrTokenInvalid
	}

	if _, exists := s.records[next.Refresh]; exists {
		return ErrSessionExists
	}
	record.State = core.SessionClosed
	return s.insert(next)
}

// Sweep removes records whose refresh lifetime has passed
func (s *MemoryLedger) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for refresh, record := range s.records {
		if now.Before(record.RefreshExpiresAt) {
			continue
		}
		delete(s.access, record.Access)
		delete(s.records, refresh)
		removed++
	}
	return removed, nil
}

// Len returns the number of stored records
func (s *MemoryLedger) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// insert never overwrites: a closed refresh token stays closed.
func (s *MemoryLedger) insert(record core.SessionRecord) error {
	if _, exists := s.records[record.Refresh]; exists {
		return ErrSessionExists
	}
	record.State = core.SessionOpen
	s.records[record.Refresh] = &record
	s.access[record.Access] = record.Refresh
	return nil
}
