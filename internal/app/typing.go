package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/domain"
)

// Typing tracks which connections are marked typing. It holds only ids back
// into the registry, never its own copy of connection records, so "who is
// typing" can never diverge from "who is connected".
type Typing struct {
	mu     sync.Mutex
	reg    *Registry
	active map[domain.ConnID]time.Time // id -> last typing start
}

func NewTyping(reg *Registry) *Typing {
	return &Typing{
		reg:    reg,
		active: make(map[domain.ConnID]time.Time),
	}
}

// SetTyping updates the typing state and returns the event to broadcast, or
// nil when the new state equals the last-broadcast one (dedup) or the
// connection is not a named participant.
func (t *Typing) SetTyping(id domain.ConnID, isTyping bool) *domain.TypingEvent {
	conn, ok := t.reg.Get(id)
	if !ok || conn.State != domain.StateNamed {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, cur := t.active[id]
	if cur == isTyping {
		return nil
	}
	if isTyping {
		t.active[id] = time.Now()
	} else {
		delete(t.active, id)
	}
	return &domain.TypingEvent{Username: conn.Username, IsTyping: isTyping}
}

// ExpireStale forces a synthetic stop for every connection typing longer than
// ttl. Each stale entry yields exactly one event: the entry is deleted in the
// same critical section that selects it. Runs on a timer, never on the
// inbound event path.
func (t *Typing) ExpireStale(now time.Time, ttl time.Duration) []domain.TypingEvent {
	t.mu.Lock()
	var stale []domain.ConnID
	for id, startedAt := range t.active {
		if now.Sub(startedAt) >= ttl {
			stale = append(stale, id)
			delete(t.active, id)
		}
	}
	t.mu.Unlock()

	events := make([]domain.TypingEvent, 0, len(stale))
	for _, id := range stale {
		conn, ok := t.reg.Get(id)
		if !ok {
			// Connection vanished without a stop; state is already gone.
			continue
		}
		log.Debug().Str("module", "app.typing").Str("cid", string(id)).Msg("typing expired")
		events = append(events, domain.TypingEvent{Username: conn.Username, IsTyping: false})
	}
	return events
}
