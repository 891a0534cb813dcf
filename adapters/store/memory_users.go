package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
)

// MemoryUserStore is an in-memory implementation of the UserStore interface
type MemoryUserStore struct {
	users    map[string]*core.User
	external map[string]string // external id -> user id
	mu       sync.Mutex
}

// NewMemoryUserStore creates a new in-memory user store
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:    make(map[string]*core.User),
		external: make(map[string]string),
	}
}

var _ ports.UserStore = (*MemoryUserStore)(nil)

// FindOrCreate returns the user of an external id, creating a blank one if needed
func (s *MemoryUserStore) FindOrCreate(ctx context.Context, externalID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.external[externalID]; ok {
		return clone(s.users[id]), nil
	}

	u := &core.User{ID: uuid.New().String(), ExternalID: externalID, Role: core.RoleBlank}
	s.users[u.ID] = u
	s.external[externalID] = u.ID
	return clone(u), nil
}

// Get returns a user by id
func (s *MemoryUserStore) Get(ctx context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return clone(u), nil
}

// SetRole changes the role of a user
func (s *MemoryUserStore) SetRole(ctx context.Context, id string, role core.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.ErrUserNotFound
	}
	u.Role = role
	return nil
}

// UpdateBond runs fn on copies of both users and stores them only if fn succeeds
func (s *MemoryUserStore) UpdateBond(ctx context.Context, patientID, keeperID string, fn ports.BondFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.users[patientID]
	if !ok {
		return core.ErrUserNotFound
	}
	k, ok := s.users[keeperID]
	if !ok {
		return core.ErrUserNotFound
	}

	patient, keeper := clone(p), clone(k)
	if err := fn(&patient, &keeper); err != nil {
		return err
	}

	s.users[patientID] = &patient
	s.users[keeperID] = &keeper
	return nil
}

// Put stores a user as is
func (s *MemoryUserStore) Put(u core.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := clone(&u)
	s.users[u.ID] = &c
	if u.ExternalID != "" {
		s.external[u.ExternalID] = u.ID
	}
}

func clone(u *core.User) core.User {
	c := *u
	c.Bonds = append([]string(nil), u.Bonds...)
	return c
}
