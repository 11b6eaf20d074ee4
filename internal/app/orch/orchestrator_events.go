package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/dkeye/Parlor/internal/protocol"
)

// OnEvent decodes and dispatches one inbound payload. Decode and validation
// failures are answered to the sender only and returned so the adapter can
// apply its repeated-malformed-input policy; they never touch shared state.
func (o *Orchestrator) OnEvent(id domain.ConnID, raw []byte) error {
	ev, err := o.Codec.Decode(raw)
	if err != nil {
		log.Debug().Str("module", "orch").Str("cid", string(id)).Err(err).Msg("rejected inbound event")
		o.replyError(id, err)
		return err
	}

	switch ev.Kind {
	case protocol.KindJoin, protocol.KindRename:
		o.handleSetName(id, ev.Username)
	case protocol.KindMessage:
		o.handleMessage(id, ev.Body)
	case protocol.KindTypingStart:
		o.handleTyping(id, true)
	case protocol.KindTypingStop:
		o.handleTyping(id, false)
	case protocol.KindPing:
		o.reply(id, protocol.EncodePong(), core.Ephemeral)
	}
	return nil
}

// handleSetName covers both the initial join and a rename; the registry's
// previous-state return tells them apart.
func (o *Orchestrator) handleSetName(id domain.ConnID, username string) {
	oldName := ""
	if conn, ok := o.Registry.Get(id); ok {
		oldName = conn.Username
	}

	prev, err := o.Registry.SetUsername(id, username)
	if err != nil {
		o.replyError(id, err)
		return
	}

	conn, ok := o.Registry.Get(id)
	if !ok {
		// Disconnected between claim and reply; Remove already cleaned up.
		return
	}

	o.reply(id, protocol.EncodeWelcome(conn.Username, o.Registry.Usernames(), o.Registry.Count(true)), core.Critical)

	if prev == domain.StateAnonymous {
		ev := o.Presence.Joined(conn.Username)
		o.broadcast(protocol.EncodePresence(ev), core.Critical, "")
		log.Info().Str("module", "orch").Str("cid", string(id)).Str("username", conn.Username).Int("count", ev.UserCount).Msg("user joined")
		return
	}
	if ev := o.Presence.Renamed(oldName, conn.Username); ev != nil {
		o.broadcast(protocol.EncodeRename(*ev), core.Critical, "")
	}
}

func (o *Orchestrator) handleMessage(id domain.ConnID, body string) {
	conn, ok := o.Registry.Get(id)
	if !ok || conn.State != domain.StateNamed {
		o.replyError(id, domain.ErrNotJoined)
		return
	}

	msg := domain.NewMessage(id, conn.Username, body)
	o.broadcast(protocol.EncodeMessage(msg), core.Critical, "")
}

func (o *Orchestrator) handleTyping(id domain.ConnID, isTyping bool) {
	ev := o.Typing.SetTyping(id, isTyping)
	if ev == nil {
		return
	}
	o.broadcast(protocol.EncodeTyping(*ev), core.Ephemeral, id)
}
