package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parlor/internal/core"
	"github.com/dkeye/Parlor/internal/domain"
	"github.com/dkeye/Parlor/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, id domain.ConnID, c *wsConn) {
	pingTicker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer func() {
		pingTicker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			ctl.writeClose(c)
			return
		case <-pingTicker.C:
			if err := ctl.write(c, websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "adapters.ws").Str("cid", string(id)).Msg("ping write failed")
				return
			}
		case <-c.queue.Ready():
			for {
				f, ok := c.queue.TryPop()
				if !ok {
					break
				}
				if err := ctl.write(c, websocket.TextMessage, f); err != nil {
					log.Debug().Err(err).Str("module", "adapters.ws").Str("cid", string(id)).Msg("write failed")
					return
				}
			}
			if c.queue.Closed() {
				ctl.writeClose(c)
				return
			}
		}
	}
}

func (ctl *Controller) write(c *wsConn, messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

func (ctl *Controller) writeClose(c *wsConn) {
	_ = c.ws.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout))
	_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
}

func (ctl *Controller) readPump(ctx context.Context, id domain.ConnID, c *wsConn, cancel context.CancelFunc) {
	defer func() {
		cancel()
		ctl.Orch.OnDisconnect(id)
		c.Close()
		log.Info().Str("module", "adapters.ws").Str("cid", string(id)).Msg("readPump closed")
	}()

	readWait := ctl.Cfg.PingPeriod + 10*time.Second
	c.ws.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readWait))
	})

	limiter := newSlidingLimiter(ctl.Cfg.RateLimitBurst, ctl.Cfg.RateLimitInterval)
	badDecodes := 0

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("module", "adapters.ws").Str("cid", string(id)).Msg("read error")
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !limiter.Allow() {
			// Answered to the offender only, as ephemeral: a flooding client
			// must not evict chat frames from its own queue.
			_ = c.TrySend(protocol.EncodeError("rate_limited", "too many messages"), core.Ephemeral)
			continue
		}

		if err := ctl.Orch.OnEvent(id, data); err != nil {
			if errors.Is(err, protocol.ErrMalformedEnvelope) || errors.Is(err, protocol.ErrUnknownEventKind) {
				badDecodes++
				if ctl.Cfg.MaxDecodeErrors > 0 && badDecodes >= ctl.Cfg.MaxDecodeErrors {
					log.Warn().Str("module", "adapters.ws").Str("cid", string(id)).Int("count", badDecodes).Msg("too many malformed payloads, disconnecting")
					return
				}
			}
			continue
		}
		badDecodes = 0
	}
}
