// Package app holds the stateful core: the connection registry, presence and
// typing derivation, and the fan-out engine with its backpressure policy.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
)

type connEntry struct {
	conn     *domain.Connection
	outbound core.Outbound
	cancel   context.CancelFunc
}

// Member is one entry of a registry snapshot: just enough to fan out to,
// detached from the registry lock.
type Member struct {
	ID       domain.ConnID
	Username string
	State    domain.ConnState
	Outbound core.Outbound
}

// Registry is the single owner of the canonical connection set. Every
// mutation passes through its methods under one mutex; nothing here ever
// blocks on transport I/O.
type Registry struct {
	mu       sync.Mutex
	conns    map[domain.ConnID]*connEntry
	named    map[string]domain.ConnID // UsernameKey -> id
	order    []domain.ConnID          // join order, for stable snapshots
	maxConns int
}

func NewRegistry(maxConns int) *Registry {
	if maxConns <= 0 {
		maxConns = 1024
	}
	return &Registry{
		conns:    make(map[domain.ConnID]*connEntry),
		named:    make(map[string]domain.ConnID),
		maxConns: maxConns,
	}
}

// Register allocates an id for a new anonymous connection. It fails only with
// ErrCapacityExceeded, leaving no partial state behind.
func (r *Registry) Register(outbound core.Outbound, cancel context.CancelFunc) (domain.ConnID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.conns) >= r.maxConns {
		return "", domain.ErrCapacityExceeded
	}

	id := domain.ConnID(uuid.NewString())
	r.conns[id] = &connEntry{
		conn: &domain.Connection{
			ID:       id,
			State:    domain.StateAnonymous,
			JoinedAt: time.Now(),
		},
		outbound: outbound,
		cancel:   cancel,
	}
	r.order = append(r.order, id)
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Int("total", len(r.conns)).Msg("connection registered")
	return id, nil
}

// SetUsername transitions a connection to Named, enforcing case-insensitive
// uniqueness among active connections. The collision check and the claim are
// one critical section, so of any number of concurrent claimants for the same
// name exactly one succeeds. The previous state is returned so the caller can
// tell an initial join from a rename.
func (r *Registry) SetUsername(id domain.ConnID, raw string) (domain.ConnState, error) {
	name, err := domain.NormalizeUsername(raw)
	if err != nil {
		return domain.StateAnonymous, err
	}
	key := domain.UsernameKey(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return domain.StateRemoved, domain.ErrUnknownConn
	}
	if holder, taken := r.named[key]; taken && holder != id {
		return e.conn.State, domain.ErrUsernameTaken
	}

	prev := e.conn.State
	if prev == domain.StateNamed {
		delete(r.named, domain.UsernameKey(e.conn.Username))
	}
	e.conn.Username = name
	e.conn.State = domain.StateNamed
	r.named[key] = id

	log.Info().Str("module", "app.registry").Str("cid", string(id)).Str("username", name).Str("prev", prev.String()).Msg("username set")
	return prev, nil
}

// Remove deletes the connection and returns a copy of the record as it was
// before removal, so callers can tell whether a named participant left.
// Idempotent: removing an unknown id returns nil.
func (r *Registry) Remove(id domain.ConnID) *domain.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return nil
	}
	if e.conn.State == domain.StateNamed {
		delete(r.named, domain.UsernameKey(e.conn.Username))
	}
	delete(r.conns, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	removed := *e.conn
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Int("total", len(r.conns)).Msg("connection removed")
	return &removed
}

// Get returns a copy of the connection record.
func (r *Registry) Get(id domain.ConnID) (domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, false
	}
	return *e.conn, true
}

// Count reports connected clients; namedOnly excludes connections still
// mid-handshake.
func (r *Registry) Count(namedOnly bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !namedOnly {
		return len(r.conns)
	}
	return len(r.named)
}

// Snapshot returns the connections in join order. Fan-out iterates this copy
// so the registry lock is never held across a send.
func (r *Registry) Snapshot() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Member, 0, len(r.order))
	for _, id := range r.order {
		e := r.conns[id]
		out = append(out, Member{
			ID:       id,
			Username: e.conn.Username,
			State:    e.conn.State,
			Outbound: e.outbound,
		})
	}
	return out
}

// Usernames lists active named users in join order, for roster replies.
func (r *Registry) Usernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.named))
	for _, id := range r.order {
		if e := r.conns[id]; e.conn.State == domain.StateNamed {
			out = append(out, e.conn.Username)
		}
	}
	return out
}

// Outbound resolves the transport endpoint for direct replies to one sender.
func (r *Registry) Outbound(id domain.ConnID) (core.Outbound, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		return e.outbound, true
	}
	return nil, false
}

// Cancel tears down the connection's read/write pumps via its context.
// The transport adapter then runs the normal disconnect path.
func (r *Registry) Cancel(id domain.ConnID) bool {
	r.mu.Lock()
	e, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Msg("canceled connection")
	return true
}
