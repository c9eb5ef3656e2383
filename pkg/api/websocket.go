package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/labdeck/pkg/events"
	"github.com/cuemby/labdeck/pkg/log"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Control messages are tiny; anything larger is a misbehaving client
	maxMessageSize = 4 * 1024
)

var (
	// ErrSendBufferFull is returned when a client is not draining its queue
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrTransportClosed is returned when sending to a closed connection
	ErrTransportClosed = errors.New("transport closed")
)

// wsTransport carries hub events over one websocket connection. Send only
// enqueues; writePump owns the socket writes.
type wsTransport struct {
	conn   *websocket.Conn
	send   chan []byte
	logger zerolog.Logger

	// Safe close handling - prevents send-on-closed-channel panics
	closeOnce sync.Once
	closed    atomic.Bool
}

var _ events.Transport = (*wsTransport)(nil)

func newWSTransport(conn *websocket.Conn, buffer int, logger zerolog.Logger) *wsTransport {
	if buffer < 1 {
		buffer = 1
	}
	return &wsTransport{
		conn:   conn,
		send:   make(chan []byte, buffer),
		logger: logger,
	}
}

// Send frames an event and queues it without blocking
func (t *wsTransport) Send(event string, payload interface{}) (err error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(events.Frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	// Close can run between the check and the send
	defer func() {
		if r := recover(); r != nil {
			err = ErrTransportClosed
		}
	}()

	if t.closed.Load() {
		return ErrTransportClosed
	}
	select {
	case t.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the writer, which sends a close frame and closes the socket
func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.send)
	})
	return nil
}

// readPump feeds client control messages to the hub until the socket
// fails, then disconnects the connection
func (t *wsTransport) readPump(hub *events.Hub, connID string) {
	defer func() {
		hub.Disconnect(connID)
		_ = t.conn.Close()
	}()

	t.conn.SetReadLimit(maxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				t.logger.Debug().Err(err).Msg("read error")
			}
			return
		}
		_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg events.ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		if err := hub.HandleControl(connID, msg); err != nil {
			t.logger.Debug().Err(err).Str("event", msg.Event).Msg("ignoring control message")
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings
func (t *wsTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = t.conn.Close()
	}()

	for {
		select {
		case message, ok := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the transport
				_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := t.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket authenticates, upgrades and admits a realtime connection
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	hs := handshakeFromRequest(r)
	if _, err := events.Authenticate(hs); err != nil {
		s.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket handshake rejected")
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	t := newWSTransport(conn, s.sendBuffer, s.logger)
	c, err := s.hub.Admit(hs, t)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket admission failed")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		_ = conn.Close()
		return
	}
	t.logger = log.WithConnection(s.logger, c.ID(), c.UserID())

	go t.writePump()
	go t.readPump(s.hub, c.ID())
}
