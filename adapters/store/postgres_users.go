package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
)

//go:embed schema.sql
var schema string

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresUserStore implements UserStore on a pgx pool
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUserStore creates a user store backed by pool
func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

var _ ports.UserStore = (*PostgresUserStore)(nil)

// EnsureSchema creates the users and bonds tables if they are missing
func (s *PostgresUserStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return storeError("failed to apply schema", err)
	}
	return nil
}

// FindOrCreate returns the user of an external id, creating a blank one if needed
func (s *PostgresUserStore) FindOrCreate(ctx context.Context, externalID string) (core.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, external_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id, external_id, role, COALESCE(cared_id, '')`,
		uuid.New().String(), externalID, string(core.RoleBlank))

	u, err := scanUser(row)
	if err != nil {
		return core.User{}, storeError("failed to find or create user", err)
	}

	if u.Bonds, err = loadBonds(ctx, s.pool, u.ID); err != nil {
		return core.User{}, err
	}
	return u, nil
}

// Get returns a user by id
func (s *PostgresUserStore) Get(ctx context.Context, id string) (core.User, error) {
	return getUser(ctx, s.pool, id)
}

// SetRole changes the role of a user
func (s *PostgresUserStore) SetRole(ctx context.Context, id string, role core.Role) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, string(role))
	if err != nil {
		return storeError("failed to set role", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

// UpdateBond locks both user rows, runs fn and writes the bond and the
// keeper's cared pointer in the same transaction
func (s *PostgresUserStore) UpdateBond(ctx context.Context, patientID, keeperID string, fn ports.BondFunc) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock in id order so concurrent bonds cannot deadlock
		first, second := patientID, keeperID
		if second < first {
			first, second = second, first
		}
		if _, err := tx.Exec(ctx, `SELECT id FROM users WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`, first, second); err != nil {
			return storeError("failed to lock users", err)
		}

		patient, err := getUser(ctx, tx, patientID)
		if err != nil {
			return err
		}
		keeper, err := getUser(ctx, tx, keeperID)
		if err != nil {
			return err
		}

		known := make(map[string]bool, len(patient.Bonds))
		for _, id := range patient.Bonds {
			known[id] = true
		}

		if err := fn(&patient, &keeper); err != nil {
			return err
		}

		for _, id := range patient.Bonds {
			if known[id] {
				continue
			}
			if _, err := tx.Exec(ctx, `INSERT INTO bonds (patient_id, keeper_id) VALUES ($1, $2)`, patient.ID, id); err != nil {
				return storeError("failed to insert bond", err)
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE users SET cared_id = NULLIF($2, '') WHERE id = $1`, keeper.ID, keeper.Cared); err != nil {
			return storeError("failed to update keeper", err)
		}
		return nil
	})
}

func getUser(ctx context.Context, q querier, id string) (core.User, error) {
	u, err := scanUser(q.QueryRow(ctx, `SELECT id, external_id, role, COALESCE(cared_id, '') FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, storeError("failed to get user", err)
	}

	if u.Bonds, err = loadBonds(ctx, q, u.ID); err != nil {
		return core.User{}, err
	}
	return u, nil
}

func loadBonds(ctx context.Context, q querier, patientID string) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT keeper_id FROM bonds WHERE patient_id = $1 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, storeError("failed to load bonds", err)
	}

	bonds, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeError("failed to load bonds", err)
	}
	return bonds, nil
}

func scanUser(row pgx.Row) (core.User, error) {
	var (
		u    core.User
		role string
	)
	if err := row.Scan(&u.ID, &u.ExternalID, &role, &u.Cared); err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = core.Role(role)
	return u, nil
}
