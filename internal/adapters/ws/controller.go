package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/app/orch"
	"github.com/dkeye/Parlor/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Orch *orch.Orchestrator
	Cfg  *config.Config
}

func NewController(o *orch.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{Orch: o, Cfg: cfg}
}

// Handle upgrades the request and hands the connection to the core. The
// pumps live until the server context or the connection's own context ends.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "adapters.ws").Str("token", token).Msg("new WS connection")

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}

	conn := newWSConn(sock, ctl.Cfg.SendBuffer)
	connCtx, cancel := context.WithCancel(ctx)

	id, err := ctl.Orch.OnConnect(conn, cancel)
	if err != nil {
		// The rejection frame is already queued; flush it before closing.
		if f, ok := conn.queue.TryPop(); ok {
			_ = sock.WriteMessage(websocket.TextMessage, f)
		}
		conn.Close()
		cancel()
		log.Warn().Err(err).Str("module", "adapters.ws").Msg("connection rejected")
		return
	}

	go ctl.writePump(connCtx, id, conn)
	go ctl.readPump(connCtx, id, conn, cancel)
}
