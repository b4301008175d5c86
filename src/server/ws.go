package server

import (
	"context"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/MDx-Vision/nicehr-realtime/src/hub"
	"github.com/MDx-Vision/nicehr-realtime/src/types"
)

const pingWriteWait = 10 * time.Second

// FastHTTPHandler returns the raw fasthttp handler for WebSocket upgrades.
// Register it at the "/ws" path beside the Fiber app; Fiber v3 does not
// expose *fasthttp.RequestCtx to its handlers.
func (s *Server) FastHTTPHandler() fasthttp.RequestHandler {
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
	}

	return func(ctx *fasthttp.RequestCtx) {
		// Resolve the session before any state exists for this
		// connection. Rejected handshakes register nothing.
		cookieHeader := string(ctx.Request.Header.Peek("Cookie"))
		sess, err := s.resolver.Resolve(ctx, cookieHeader)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"unauthorized"}`)
			return
		}

		err = upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			client := hub.NewClient(
				uuid.New().String(),
				sess.UserID,
				sess.Role,
				&wsConn{conn: conn},
				s.cfg.SendBuffer,
				s.logger,
			)
			// Pong responses are the only thing that counts as
			// liveness; application traffic does not.
			conn.SetPongHandler(func(string) error {
				client.MarkAlive()
				return nil
			})

			s.registry.Add(client)
			go client.WritePump()
			client.TrySend(types.Authenticated(sess.UserID))

			s.logger.Info().
				Str("conn_id", client.ID()).
				Str("user_id", sess.UserID).
				Msg("connection authenticated")

			s.readLoop(client)
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// readLoop pumps inbound envelopes until the transport fails or the client
// closes, then tears the connection down.
func (s *Server) readLoop(c *hub.Client) {
	ctx := context.Background()
	defer s.bc.Drop(c)

	for {
		msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(ctx, c, msg)
	}
}

// wsConn adapts fasthttp/websocket.Conn to types.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) WriteJSON(v any) error { return w.conn.WriteJSON(v) }
func (w *wsConn) ReadJSON(v any) error  { return w.conn.ReadJSON(v) }
func (w *wsConn) Close() error          { return w.conn.Close() }

// WritePing is safe to call concurrently with the write pump; control
// frames have their own write path in the websocket library.
func (w *wsConn) WritePing() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteWait))
}
