package app

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
)

// Outcome is one recipient's delivery result.
type Outcome struct {
	ID  domain.ConnID
	Err error
}

// DeliveryReport aggregates a single fan-out pass. Failures are always
// per-recipient; the pass itself cannot fail.
type DeliveryReport struct {
	Sent   int
	Failed []Outcome
}

// Fanout delivers one frame to many recipients. Every attempt is a
// non-blocking TrySend into the recipient's own queue, so a slow or dead
// recipient costs the others nothing beyond a map lookup.
type Fanout struct {
	policy Policy
	kick   func(domain.ConnID)

	mu        sync.Mutex
	slowSince map[domain.ConnID]time.Time
}

// NewFanout wires the backpressure policy to a kick callback (in practice
// Registry.Cancel). kick may be nil for tests.
func NewFanout(policy Policy, kick func(domain.ConnID)) *Fanout {
	return &Fanout{
		policy:    policy,
		kick:      kick,
		slowSince: make(map[domain.ConnID]time.Time),
	}
}

// Deliver sends frame to every target except excluding. A sender's frames
// enter each recipient's queue in submission order because Deliver is called
// from that sender's read loop; cross-sender order is not promised.
func (f *Fanout) Deliver(targets []Member, frame core.Frame, class core.Class, excluding domain.ConnID) DeliveryReport {
	now := time.Now()
	var rep DeliveryReport

	for _, m := range targets {
		if m.ID == excluding {
			continue
		}
		err := m.Outbound.TrySend(frame, class)
		if err == nil {
			rep.Sent++
			f.clearSlow(m.ID)
			continue
		}
		rep.Failed = append(rep.Failed, Outcome{ID: m.ID, Err: err})
		f.handleFailure(m.ID, class, err, now)
	}

	log.Debug().Str("module", "app.fanout").Int("sent", rep.Sent).Int("failed", len(rep.Failed)).Msg("fanout pass")
	return rep
}

func (f *Fanout) handleFailure(id domain.ConnID, class core.Class, err error, now time.Time) {
	if errors.Is(err, core.ErrConnClosed) {
		// The adapter is already tearing this connection down.
		f.clearSlow(id)
		return
	}
	if !errors.Is(err, core.ErrBackpressure) || class == core.Ephemeral {
		// Losing a typing frame is the drop policy working as configured.
		return
	}

	f.mu.Lock()
	slowSince, ok := f.slowSince[id]
	if !ok {
		slowSince = now
		f.slowSince[id] = slowSince
	}
	f.mu.Unlock()

	if f.policy == nil {
		return
	}
	switch f.policy.OnBackpressure(id, slowSince, now) {
	case KickRecipient:
		f.clearSlow(id)
		log.Warn().Str("module", "app.fanout").Str("cid", string(id)).Msg("recipient over backpressure grace, kicking")
		if f.kick != nil {
			f.kick(id)
		}
	case DropFrame, NoAction:
	}
}

func (f *Fanout) clearSlow(id domain.ConnID) {
	f.mu.Lock()
	delete(f.slowSince, id)
	f.mu.Unlock()
}

// Forget clears slow-recipient bookkeeping after a disconnect.
func (f *Fanout) Forget(id domain.ConnID) {
	f.clearSlow(id)
}
