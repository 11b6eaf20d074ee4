package app

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
)

// nopOutbound is a transport stand-in that accepts everything.
type nopOutbound struct{}

func (nopOutbound) TrySend(core.Frame, core.Class) error { return nil }
func (nopOutbound) Close()                               {}

func newTestRegistry(t *testing.T, max int) *Registry {
	t.Helper()
	return NewRegistry(max)
}

func register(t *testing.T, r *Registry) domain.ConnID {
	t.Helper()
	id, err := r.Register(nopOutbound{}, nil)
	require.NoError(t, err)
	return id
}

func TestRegisterAssignsUniqueIDs(t *testing.T) {
	r := newTestRegistry(t, 16)

	seen := make(map[domain.ConnID]bool)
	for i := 0; i < 10; i++ {
		id := register(t, r)
		require.False(t, seen[id])
		seen[id] = true
	}
	require.Equal(t, 10, r.Count(false))
	require.Equal(t, 0, r.Count(true))
}

func TestRegisterCapacity(t *testing.T) {
	r := newTestRegistry(t, 2)

	register(t, r)
	register(t, r)

	_, err := r.Register(nopOutbound{}, nil)
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	// Rejection leaves no partial state behind.
	require.Equal(t, 2, r.Count(false))
}

func TestSetUsernameTransitions(t *testing.T) {
	r := newTestRegistry(t, 16)
	id := register(t, r)

	prev, err := r.SetUsername(id, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StateAnonymous, prev)

	conn, ok := r.Get(id)
	require.True(t, ok)
	require.Equal(t, "alice", conn.Username)
	require.Equal(t, domain.StateNamed, conn.State)

	// Named -> Named is a rename.
	prev, err = r.SetUsername(id, "alicia")
	require.NoError(t, err)
	require.Equal(t, domain.StateNamed, prev)
}

func TestSetUsernameValidation(t *testing.T) {
	r := newTestRegistry(t, 16)
	id := register(t, r)

	for _, name := range []string{"", "   ", "a\x00b", strings.Repeat("x", domain.MaxUsernameLen+1)} {
		_, err := r.SetUsername(id, name)
		require.ErrorIs(t, err, domain.ErrInvalidUsername, "name %q", name)
	}

	conn, _ := r.Get(id)
	require.Equal(t, domain.StateAnonymous, conn.State)
}

func TestSetUsernameCaseInsensitiveCollision(t *testing.T) {
	r := newTestRegistry(t, 16)
	a := register(t, r)
	b := register(t, r)

	_, err := r.SetUsername(a, "Bob")
	require.NoError(t, err)

	_, err = r.SetUsername(b, "bob")
	require.ErrorIs(t, err, domain.ErrUsernameTaken)

	conn, _ := r.Get(b)
	require.Equal(t, domain.StateAnonymous, conn.State)
	require.Equal(t, 1, r.Count(true))
}

func TestRenameFreesOldUsername(t *testing.T) {
	r := newTestRegistry(t, 16)
	a := register(t, r)
	b := register(t, r)

	_, err := r.SetUsername(a, "carol")
	require.NoError(t, err)
	_, err = r.SetUsername(a, "caroline")
	require.NoError(t, err)

	_, err = r.SetUsername(b, "carol")
	require.NoError(t, err)
}

func TestRemoveFreesUsername(t *testing.T) {
	r := newTestRegistry(t, 16)
	a := register(t, r)

	_, err := r.SetUsername(a, "dave")
	require.NoError(t, err)

	removed := r.Remove(a)
	require.NotNil(t, removed)
	require.Equal(t, domain.StateNamed, removed.State)
	require.Equal(t, "dave", removed.Username)

	b := register(t, r)
	_, err = r.SetUsername(b, "dave")
	require.NoError(t, err)
}

func TestRemoveIdempotent(t *testing.T) {
	r := newTestRegistry(t, 16)
	id := register(t, r)

	require.NotNil(t, r.Remove(id))
	require.Nil(t, r.Remove(id))
	require.Nil(t, r.Remove(domain.ConnID("never-existed")))
}

func TestCountTracksNamedState(t *testing.T) {
	r := newTestRegistry(t, 64)

	// Interleave joins, names and leaves; Count(true) must always equal the
	// number of records currently in Named state.
	var ids []domain.ConnID
	for i := 0; i < 8; i++ {
		ids = append(ids, register(t, r))
	}
	named := 0
	for i, id := range ids {
		if i%2 == 0 {
			_, err := r.SetUsername(id, "user-"+string(rune('a'+i)))
			require.NoError(t, err)
			named++
		}
		require.Equal(t, named, r.Count(true))
	}
	for i, id := range ids {
		r.Remove(id)
		if i%2 == 0 {
			named--
		}
		require.Equal(t, named, r.Count(true))
	}
	require.Equal(t, 0, r.Count(false))
}

func TestConcurrentUsernameClaim(t *testing.T) {
	r := newTestRegistry(t, 128)

	const claimants = 32
	ids := make([]domain.ConnID, claimants)
	for i := range ids {
		ids[i] = register(t, r)
	}

	var wg sync.WaitGroup
	errs := make([]error, claimants)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.SetUsername(ids[i], "highlander")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, domain.ErrUsernameTaken)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, r.Count(true))
}

func TestSnapshotJoinOrder(t *testing.T) {
	r := newTestRegistry(t, 16)

	a := register(t, r)
	b := register(t, r)
	c := register(t, r)
	r.Remove(b)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, a, snap[0].ID)
	require.Equal(t, c, snap[1].ID)
}

func TestUsernamesRoster(t *testing.T) {
	r := newTestRegistry(t, 16)

	a := register(t, r)
	register(t, r) // stays anonymous
	c := register(t, r)

	_, err := r.SetUsername(a, "erin")
	require.NoError(t, err)
	_, err = r.SetUsername(c, "frank")
	require.NoError(t, err)

	require.Equal(t, []string{"erin", "frank"}, r.Usernames())
}
