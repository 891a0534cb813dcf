package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/layer-3/keeper/adapters/store"
	"github.com/layer-3/keeper/adapters/tokenizer"
	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
	"go.uber.org/zap"
)

const (
	accessTTL  = time.Hour
	refreshTTL = 72 * time.Hour
	bondingTTL = 5 * time.Minute
	maxBonds   = 2
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Now()} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	closed []string
	bonds  [][2]string
	err    error
}

func (p *recordingPublisher) PublishSessionClosed(_ context.Context, subject, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, subject+":"+reason)
	return p.err
}

func (p *recordingPublisher) PublishBondEstablished(_ context.Context, patientID, keeperID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bonds = append(p.bonds, [2]string{patientID, keeperID})
	return p.err
}

type fixture struct {
	clock     *clock
	tokenizer ports.Tokenizer
	ledger    *store.MemoryLedger
	users     *store.MemoryUserStore
	events    *recordingPublisher
	sessions  *SessionService
	bonding   *BondingService
}

func newFixture() *fixture {
	f := &fixture{
		clock:  newClock(),
		users:  store.NewMemoryUserStore(),
		events: &recordingPublisher{},
	}
	f.tokenizer = tokenizer.NewJWTTokenizer(map[core.Domain]core.DomainPolicy{
		core.DomainAccess:  {Secret: []byte("access-secret"), TTL: accessTTL},
		core.DomainRefresh: {Secret: []byte("refresh-secret"), TTL: refreshTTL},
		core.DomainBonding: {Secret: []byte("bonding-secret"), TTL: bondingTTL},
	}, tokenizer.WithClock(f.clock.Now))
	f.ledger = store.NewMemoryLedgerWithClock(f.clock.Now)
	f.sessions = NewSessionService(f.tokenizer, f.ledger, f.events, zap.NewNop())
	f.bonding = NewBondingService(f.tokenizer, f.users, f.events, maxBonds, zap.NewNop())
	return f
}

// failingLedger reports an infrastructure failure on every call
type failingLedger struct{}

var errDown = errors.New("connection refused")

func (failingLedger) fail() error { return errors.Join(core.ErrStoreOperationFailed, errDown) }

func (l failingLedger) StartSession(context.Context, core.SessionRecord) error {
	return l.fail()
}

func (l failingLedger) IsOpen(context.Context, string) (bool, error) {
	return false, l.fail()
}

func (l failingLedger) IsRefreshable(context.Context, string) (bool, error) {
	return false, l.fail()
}

func (l failingLedger) CheckTuple(context.Context, string, string) (bool, error) {
	return false, l.fail()
}

func (l failingLedger) CloseSession(context.Context, string) error {
	return l.fail()
}

func (l failingLedger) Rotate(context.Context, string, core.SessionRecord) error {
	return l.fail()
}

func (l failingLedger) Sweep(context.Context) (int, error) {
	return 0, l.fail()
}
