package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/layer-3/keeper/adapters/store"
	"github.com/layer-3/keeper/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	pkg, err := f.sessions.Open(ctx, "user-1")
	require.NoError(t, err)

	access, err := f.tokenizer.Verify(core.DomainAccess, pkg.Access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", access.Subject)

	refresh, err := f.tokenizer.Verify(core.DomainRefresh, pkg.Refresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refresh.Subject)

	assert.True(t, pkg.ExpiresAt.Equal(access.IssuedAt.Add(accessTTL)))
	assert.True(t, pkg.ExpiresAt.Equal(access.ExpiresAt))

	subject, err := f.sessions.SubjectOf(pkg.Access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
}

func TestVerifyAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("open session", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		claims, err := f.sessions.VerifyAccess(ctx, pkg.Access)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
	})

	t.Run("closed session", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)
		require.NoError(t, f.sessions.Close(ctx, pkg.Access, pkg.Refresh))

		_, err = f.sessions.VerifyAccess(ctx, pkg.Access)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("expired token with open session", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		f.clock.Advance(accessTTL + 1)
		open, err := f.ledger.IsOpen(ctx, pkg.Access)
		require.NoError(t, err)
		require.True(t, open)

		_, err = f.sessions.VerifyAccess(ctx, pkg.Access)
		assert.ErrorIs(t, err, core.ErrTokenExpired)
	})

	t.Run("valid signature without ledger record", func(t *testing.T) {
		f := newFixture()
		token, _, err := f.tokenizer.Mint(core.DomainAccess, "user-1")
		require.NoError(t, err)

		_, err = f.sessions.VerifyAccess(ctx, token)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("refresh token as access token", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		_, err = f.sessions.VerifyAccess(ctx, pkg.Refresh)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})
}

func TestCheckPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	first, err := f.sessions.Open(ctx, "user-1")
	require.NoError(t, err)
	second, err := f.sessions.Open(ctx, "user-1")
	require.NoError(t, err)

	ok, err := f.sessions.CheckPair(ctx, first.Access, first.Refresh)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.sessions.CheckPair(ctx, first.Access, second.Refresh)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.sessions.CheckPair(ctx, second.Access, first.Refresh)
	require.NoError(t, err)
	assert.False(t, ok)

	rotated, err := f.sessions.Rotate(ctx, first.Access, first.Refresh)
	require.NoError(t, err)

	ok, err = f.sessions.CheckPair(ctx, rotated.Access, rotated.Refresh)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.sessions.CheckPair(ctx, first.Access, first.Refresh)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRotate(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a new session", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		next, err := f.sessions.Rotate(ctx, pkg.Access, pkg.Refresh)
		require.NoError(t, err)
		assert.NotEqual(t, pkg.Access, next.Access)
		assert.NotEqual(t, pkg.Refresh, next.Refresh)

		claims, err := f.sessions.VerifyAccess(ctx, next.Access)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.True(t, next.ExpiresAt.Equal(claims.IssuedAt.Add(accessTTL)))

		_, err = f.sessions.VerifyAccess(ctx, pkg.Access)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)

		assert.Equal(t, []string{"user-1:rotated"}, f.events.closed)
	})

	t.Run("refresh token is single use", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		_, err = f.sessions.Rotate(ctx, pkg.Access, pkg.Refresh)
		require.NoError(t, err)

		_, err = f.sessions.Rotate(ctx, pkg.Access, pkg.Refresh)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("subject comes from the access token", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)
		other, _, err := f.tokenizer.Mint(core.DomainAccess, "user-2")
		require.NoError(t, err)

		next, err := f.sessions.Rotate(ctx, other, pkg.Refresh)
		require.NoError(t, err)

		subject, err := f.sessions.SubjectOf(next.Access)
		require.NoError(t, err)
		assert.Equal(t, "user-2", subject)
	})

	t.Run("works with an expired access token", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		f.clock.Advance(accessTTL + 1)
		_, err = f.sessions.Rotate(ctx, pkg.Access, pkg.Refresh)
		assert.NoError(t, err)
	})

	t.Run("closed session", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)
		require.NoError(t, f.sessions.Close(ctx, pkg.Access, pkg.Refresh))

		_, err = f.sessions.Rotate(ctx, pkg.Access, pkg.Refresh)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		f.clock.Advance(refreshTTL + 1)
		_, err = f.sessions.Rotate(ctx, pkg.Access, pkg.Refresh)
		assert.ErrorIs(t, err, core.ErrTokenExpired)
	})

	t.Run("invalid refresh token", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		_, err = f.sessions.Rotate(ctx, pkg.Access, "invalid")
		assert.ErrorIs(t, err, core.ErrTokenInvalid)

		_, err = f.sessions.Rotate(ctx, pkg.Access, pkg.Access)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("unregistered refresh token", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)
		stray, _, err := f.tokenizer.Mint(core.DomainRefresh, "user-1")
		require.NoError(t, err)

		_, err = f.sessions.Rotate(ctx, pkg.Access, stray)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)
	})

	t.Run("malformed access token", func(t *testing.T) {
		f := newFixture()
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		_, err = f.sessions.Rotate(ctx, "garbage", pkg.Refresh)
		assert.ErrorIs(t, err, core.ErrTokenInvalid)

		refreshable, err := f.ledger.IsRefreshable(ctx, pkg.Refresh)
		require.NoError(t, err)
		assert.True(t, refreshable, "failed rotation must leave the session intact")
	})

	t.Run("publish failure does not fail rotation", func(t *testing.T) {
		f := newFixture()
		f.events.err = assert.AnError
		pkg, err := f.sessions.Open(ctx, "user-1")
		require.NoError(t, err)

		_, err = f.sessions.Rotate(ctx, pkg.Access, pkg.Refresh)
		assert.NoError(t, err)
	})
}

func TestRotateConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	pkg, err := f.sessions.Open(ctx, "user-1")
	require.NoError(t, err)

	const n = 50
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		successes atomic.Int32
		invalid   atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.sessions.Rotate(ctx, pkg.Access, pkg.Refresh)
			switch {
			case err == nil:
				successes.Add(1)
			case assert.ErrorIs(t, err, core.ErrTokenInvalid):
				invalid.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(n-1), invalid.Load())
	// The original record plus exactly one successor
	assert.Equal(t, 2, f.ledger.Len())
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a, err := f.sessions.Open(ctx, "user-1")
	require.NoError(t, err)
	b, err := f.sessions.Open(ctx, "user-1")
	require.NoError(t, err)

	err = f.sessions.Close(ctx, a.Access, b.Refresh)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)

	require.NoError(t, f.sessions.Close(ctx, a.Access, a.Refresh))
	assert.Equal(t, []string{"user-1:logout"}, f.events.closed)

	_, err = f.sessions.VerifyAccess(ctx, a.Access)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)

	_, err = f.sessions.VerifyAccess(ctx, b.Access)
	assert.NoError(t, err)
}

func TestLedgerFailureIsNotTokenInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	healthy, err := f.sessions.Open(ctx, "user-1")
	require.NoError(t, err)

	sessions := NewSessionService(f.tokenizer, failingLedger{}, f.events, zap.NewNop())

	_, err = sessions.Open(ctx, "user-1")
	assert.ErrorIs(t, err, core.ErrStoreOperationFailed)

	_, err = sessions.VerifyAccess(ctx, healthy.Access)
	assert.ErrorIs(t, err, core.ErrStoreOperationFailed)
	assert.NotErrorIs(t, err, core.ErrTokenInvalid)

	_, err = sessions.Rotate(ctx, healthy.Access, healthy.Refresh)
	assert.ErrorIs(t, err, core.ErrStoreOperationFailed)
	assert.NotErrorIs(t, err, core.ErrTokenInvalid)

	_, err = sessions.CheckPair(ctx, healthy.Access, healthy.Refresh)
	assert.ErrorIs(t, err, core.ErrStoreOperationFailed)
}

func TestSweeperRespectsLedgerExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	pkg, err := f.sessions.Open(ctx, "user-1")
	require.NoError(t, err)

	f.clock.Advance(refreshTTL + 1)
	NewSweeper(f.ledger, 0, zap.NewNop()).sweep(ctx)
	assert.Zero(t, f.ledger.Len())

	_, err = f.sessions.Rotate(ctx, pkg.Access, pkg.Refresh)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestSweeperRun(t *testing.T) {
	ledger := store.NewMemoryLedger()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewSweeper(ledger, 1, zap.NewNop()).Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
