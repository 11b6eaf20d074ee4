// Package ws adapts the messaging core to gorilla/websocket: one read pump
// and one write pump per connection, with a bounded class-aware send queue in
// between so fan-out never blocks on a socket.
package ws

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dkeye/Parlor/internal/core"
)

// wsConn implements core.Outbound over a websocket connection.
// Owned by the adapter; only the write pump touches the socket for writes.
type wsConn struct {
	ws    *websocket.Conn
	queue *core.SendQueue

	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, sendBuffer int) *wsConn {
	return &wsConn{
		ws:    ws,
		queue: core.NewSendQueue(sendBuffer),
	}
}

func (c *wsConn) TrySend(f core.Frame, class core.Class) error {
	return c.queue.Push(f, class)
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		c.queue.Close()
		_ = c.ws.Close()
	})
}
