// Package orch glues registry, presence, typing and fan-out together: one
// decoded client event in, zero or more outbound frames out.
package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/app"
	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/dkeye/Parlor/internal/protocol"
)

type Orchestrator struct {
	Registry *app.Registry
	Presence *app.Presence
	Typing   *app.Typing
	Fanout   *app.Fanout
	Codec    *protocol.Codec

	TypingTTL     time.Duration
	SweepInterval time.Duration
}

// OnConnect registers a fresh transport connection. A capacity rejection is
// answered on the connection itself before the caller closes it; nothing is
// left behind in the registry.
func (o *Orchestrator) OnConnect(outbound core.Outbound, cancel context.CancelFunc) (domain.ConnID, error) {
	id, err := o.Registry.Register(outbound, cancel)
	if err != nil {
		_ = outbound.TrySend(protocol.EncodeError(protocol.ErrorKind(err), "server is full"), core.Critical)
		return "", err
	}
	return id, nil
}

// OnDisconnect runs the single cleanup path for both graceful and abrupt
// closes. The registry entry is removed exactly once; a connection that
// vanished mid-typing gets its synthetic stop broadcast right here instead of
// waiting for the TTL sweep.
func (o *Orchestrator) OnDisconnect(id domain.ConnID) {
	stop := o.Typing.SetTyping(id, false)
	removed := o.Registry.Remove(id)
	o.Fanout.Forget(id)
	if removed == nil {
		return
	}

	if stop != nil {
		o.broadcast(protocol.EncodeTyping(*stop), core.Ephemeral, id)
	}
	if removed.State == domain.StateNamed {
		ev := o.Presence.Left(removed.Username)
		o.broadcast(protocol.EncodePresence(ev), core.Critical, "")
		log.Info().Str("module", "orch").Str("cid", string(id)).Str("username", removed.Username).Int("count", ev.UserCount).Msg("user left")
	}
}

// RunTypingSweeper periodically expires stale typing state. Runs until ctx is
// done; meant to be started once from main.
func (o *Orchestrator) RunTypingSweeper(ctx context.Context) {
	interval := o.SweepInterval
	if interval <= 0 {
		interval = o.TypingTTL / 2
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "orch").Msg("typing sweeper stopped")
			return
		case now := <-ticker.C:
			for _, ev := range o.Typing.ExpireStale(now, o.TypingTTL) {
				o.broadcast(protocol.EncodeTyping(ev), core.Ephemeral, "")
			}
		}
	}
}

// broadcast fans a frame out to a fresh registry snapshot. The snapshot means
// no registry lock is held while recipients are being fed.
func (o *Orchestrator) broadcast(frame core.Frame, class core.Class, excluding domain.ConnID) {
	o.Fanout.Deliver(o.Registry.Snapshot(), frame, class, excluding)
}

// reply answers the originating connection only.
func (o *Orchestrator) reply(id domain.ConnID, frame core.Frame, class core.Class) {
	if outbound, ok := o.Registry.Outbound(id); ok {
		_ = outbound.TrySend(frame, class)
	}
}

func (o *Orchestrator) replyError(id domain.ConnID, err error) {
	o.reply(id, protocol.EncodeError(protocol.ErrorKind(err), err.Error()), core.Critical)
}
