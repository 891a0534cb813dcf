package ports

import (
	"context"

	"github.com/layer-3/keeper/core"
)

// Ledger records which (access, refresh) tuples are currently usable
type Ledger interface {
	StartSession(ctx context.Context, record core.SessionRecord) error
	IsOpen(ctx context.Context, access string) (bool, error)
	IsRefreshable(ctx context.Context, refresh string) (bool, error)
	CheckTuple(ctx context.Context, access, refresh string) (bool, error)
	CloseSession(ctx context.Context, refresh string) error

	// Rotate closes the session of oldRefresh and starts next as one step.
	// It returns core.ErrTokenInvalid and changes nothing when the old
	// session is not refreshable.
	Rotate(ctx context.Context, oldRefresh string, next core.SessionRecord) error

	// Sweep deletes records whose refresh lifetime has passed.
	Sweep(ctx context.Context) (int, error)
}

// BondFunc mutates a patient and a keeper loaded inside one store unit
type BondFunc func(patient, keeper *core.User) error

// UserStore persists users and their bonds
type UserStore interface {
	FindOrCreate(ctx context.Context, externalID string) (core.User, error)
	Get(ctx context.Context, id string) (core.User, error)
	SetRole(ctx context.Context, id string, role core.Role) error

	// UpdateBond loads both users, runs fn and persists both or neither.
	UpdateBond(ctx context.Context, patientID, keeperID string, fn BondFunc) error
}
