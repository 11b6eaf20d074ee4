package orch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parlor/internal/app"
	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/dkeye/Parlor/internal/protocol"
)

// fakeOutbound records every frame the core hands to this recipient.
type fakeOutbound struct {
	frames []core.Frame
}

func (o *fakeOutbound) TrySend(f core.Frame, _ core.Class) error {
	o.frames = append(o.frames, f)
	return nil
}

func (o *fakeOutbound) Close() {}

// received decodes the captured frames for assertions.
func (o *fakeOutbound) received(t *testing.T) []map[string]any {
	t.Helper()
	out := make([]map[string]any, 0, len(o.frames))
	for _, f := range o.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (o *fakeOutbound) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range o.received(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func newOrchestrator(maxConns int) *Orchestrator {
	registry := app.NewRegistry(maxConns)
	fanout := app.NewFanout(app.GracePolicy{Grace: time.Second}, func(id domain.ConnID) {
		registry.Cancel(id)
	})
	return &Orchestrator{
		Registry:  registry,
		Presence:  app.NewPresence(registry),
		Typing:    app.NewTyping(registry),
		Fanout:    fanout,
		Codec:     protocol.NewCodec(512),
		TypingTTL: 5 * time.Second,
	}
}

func connect(t *testing.T, o *Orchestrator) (domain.ConnID, *fakeOutbound) {
	t.Helper()
	out := &fakeOutbound{}
	id, err := o.OnConnect(out, nil)
	require.NoError(t, err)
	return id, out
}

func send(t *testing.T, o *Orchestrator, id domain.ConnID, raw string) {
	t.Helper()
	require.NoError(t, o.OnEvent(id, []byte(raw)))
}

func TestJoinBroadcastsUserJoined(t *testing.T) {
	o := newOrchestrator(16)
	a, aOut := connect(t, o)

	send(t, o, a, `{"type":"join","username":"alice"}`)

	welcomes := aOut.ofType(t, "welcome")
	require.Len(t, welcomes, 1)
	require.Equal(t, "alice", welcomes[0]["username"])

	// The join announcement reaches every connection, the joiner included.
	joined := aOut.ofType(t, "user_joined")
	require.Len(t, joined, 1)
	require.Equal(t, "alice", joined[0]["username"])
	require.EqualValues(t, 1, joined[0]["user_count"])
}

func TestMessageBroadcastInOrder(t *testing.T) {
	o := newOrchestrator(16)
	a, _ := connect(t, o)
	b, bOut := connect(t, o)

	send(t, o, a, `{"type":"join","username":"alice"}`)
	send(t, o, b, `{"type":"join","username":"bob"}`)

	send(t, o, a, `{"type":"message","body":"first"}`)
	send(t, o, a, `{"type":"message","body":"second"}`)

	msgs := bOut.ofType(t, "message")
	require.Len(t, msgs, 2)
	require.Equal(t, "alice", msgs[0]["username"])
	require.Equal(t, "first", msgs[0]["body"])
	require.Equal(t, "second", msgs[1]["body"])
	require.NotZero(t, msgs[0]["sent_at"])
}

func TestSenderReceivesOwnMessage(t *testing.T) {
	o := newOrchestrator(16)
	a, aOut := connect(t, o)
	send(t, o, a, `{"type":"join","username":"alice"}`)

	send(t, o, a, `{"type":"message","body":"hi"}`)

	msgs := aOut.ofType(t, "message")
	require.Len(t, msgs, 1)
	require.Equal(t, "hi", msgs[0]["body"])
}

func TestDuplicateNameRejected(t *testing.T) {
	o := newOrchestrator(16)
	a, aOut := connect(t, o)
	b, bOut := connect(t, o)

	send(t, o, a, `{"type":"join","username":"bob"}`)
	send(t, o, b, `{"type":"join","username":"bob"}`)

	errs := bOut.ofType(t, "error")
	require.Len(t, errs, 1)
	require.Equal(t, "invalid_username", errs[0]["kind"])

	// The loser is not in the named set and nothing was announced for it.
	require.Equal(t, 1, o.Registry.Count(true))
	require.Len(t, aOut.ofType(t, "user_joined"), 1)
}

func TestMessageFromAnonymousRejected(t *testing.T) {
	o := newOrchestrator(16)
	a, aOut := connect(t, o)

	send(t, o, a, `{"type":"message","body":"hello?"}`)

	errs := aOut.ofType(t, "error")
	require.Len(t, errs, 1)
	require.Equal(t, "not_joined", errs[0]["kind"])
	require.Empty(t, aOut.ofType(t, "message"))
}

func TestTypingBroadcastExcludesSender(t *testing.T) {
	o := newOrchestrator(16)
	a, aOut := connect(t, o)
	b, bOut := connect(t, o)

	send(t, o, a, `{"type":"join","username":"alice"}`)
	send(t, o, b, `{"type":"join","username":"bob"}`)

	send(t, o, a, `{"type":"typing_start"}`)
	send(t, o, a, `{"type":"typing_start"}`) // deduped

	typing := bOut.ofType(t, "typing")
	require.Len(t, typing, 1)
	require.Equal(t, "alice", typing[0]["username"])
	require.Equal(t, true, typing[0]["is_typing"])
	require.Empty(t, aOut.ofType(t, "typing"))

	send(t, o, a, `{"type":"typing_stop"}`)
	typing = bOut.ofType(t, "typing")
	require.Len(t, typing, 2)
	require.Equal(t, false, typing[1]["is_typing"])
}

func TestDisconnectCleanup(t *testing.T) {
	o := newOrchestrator(16)
	a, _ := connect(t, o)
	b, bOut := connect(t, o)

	send(t, o, a, `{"type":"join","username":"alice"}`)
	send(t, o, b, `{"type":"join","username":"bob"}`)
	send(t, o, a, `{"type":"typing_start"}`)

	// Abrupt disconnect mid-typing.
	o.OnDisconnect(a)

	typing := bOut.ofType(t, "typing")
	require.Len(t, typing, 2)
	require.Equal(t, false, typing[1]["is_typing"])

	left := bOut.ofType(t, "user_left")
	require.Len(t, left, 1)
	require.Equal(t, "alice", left[0]["username"])
	require.EqualValues(t, 1, left[0]["user_count"])

	// A second disconnect for the same id is a no-op.
	o.OnDisconnect(a)
	require.Len(t, bOut.ofType(t, "user_left"), 1)
}

func TestAnonymousDisconnectIsSilent(t *testing.T) {
	o := newOrchestrator(16)
	a, _ := connect(t, o)
	b, bOut := connect(t, o)
	send(t, o, b, `{"type":"join","username":"bob"}`)

	o.OnDisconnect(a)
	require.Empty(t, bOut.ofType(t, "user_left"))
}

func TestCapacityRejection(t *testing.T) {
	o := newOrchestrator(1)
	connect(t, o)

	out := &fakeOutbound{}
	_, err := o.OnConnect(out, nil)
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)

	errs := out.ofType(t, "error")
	require.Len(t, errs, 1)
	require.Equal(t, "capacity_exceeded", errs[0]["kind"])
}

func TestRenameAcksWithoutBroadcastByDefault(t *testing.T) {
	o := newOrchestrator(16)
	a, _ := connect(t, o)
	b, bOut := connect(t, o)

	send(t, o, a, `{"type":"join","username":"alice"}`)
	send(t, o, b, `{"type":"join","username":"bob"}`)

	send(t, o, a, `{"type":"rename","username":"alicia"}`)

	require.Empty(t, bOut.ofType(t, "user_renamed"))
	// Roster reflects the rename and the count is unchanged.
	require.Equal(t, []string{"alicia", "bob"}, o.Registry.Usernames())
	require.Len(t, bOut.ofType(t, "user_joined"), 2)
}

func TestRenameBroadcastWhenEnabled(t *testing.T) {
	o := newOrchestrator(16)
	o.Presence.AnnounceRenames = true
	a, _ := connect(t, o)
	b, bOut := connect(t, o)

	send(t, o, a, `{"type":"join","username":"alice"}`)
	send(t, o, b, `{"type":"join","username":"bob"}`)
	send(t, o, a, `{"type":"rename","username":"alicia"}`)

	renamed := bOut.ofType(t, "user_renamed")
	require.Len(t, renamed, 1)
	require.Equal(t, "alice", renamed[0]["old_username"])
	require.Equal(t, "alicia", renamed[0]["username"])
}

func TestPingAnsweredWithPong(t *testing.T) {
	o := newOrchestrator(16)
	a, aOut := connect(t, o)

	send(t, o, a, `{"type":"ping"}`)
	require.Len(t, aOut.ofType(t, "pong"), 1)
}

func TestMalformedEventAnsweredAndReturned(t *testing.T) {
	o := newOrchestrator(16)
	a, aOut := connect(t, o)

	err := o.OnEvent(a, []byte(`not json`))
	require.ErrorIs(t, err, protocol.ErrMalformedEnvelope)

	errs := aOut.ofType(t, "error")
	require.Len(t, errs, 1)
	require.Equal(t, "malformed_envelope", errs[0]["kind"])
}

func TestTypingSweepBroadcastsSyntheticStop(t *testing.T) {
	o := newOrchestrator(16)
	a, _ := connect(t, o)
	b, bOut := connect(t, o)

	send(t, o, a, `{"type":"join","username":"alice"}`)
	send(t, o, b, `{"type":"join","username":"bob"}`)
	send(t, o, a, `{"type":"typing_start"}`)

	for _, ev := range o.Typing.ExpireStale(time.Now().Add(o.TypingTTL+time.Second), o.TypingTTL) {
		o.broadcast(protocol.EncodeTyping(ev), core.Ephemeral, "")
	}

	typing := bOut.ofType(t, "typing")
	require.Len(t, typing, 2)
	require.Equal(t, false, typing[1]["is_typing"])
}
