package display

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans serialized envelopes out to websocket clients.
//
// The peer set and the newest frame are owned by the Run goroutine; every
// other goroutine talks to the hub through its channels. A joining client
// gets the newest frame queued before it can see anything else, so a
// viewer draws the ring at once instead of waiting for the next frame.
// A client that cannot keep up is dropped rather than allowed to stall the
// others.
type Hub struct {
	logger *slog.Logger

	in     chan hubMsg
	joins  chan *Client
	leaves chan *Client
	done   chan struct{}

	peers  map[*Client]struct{}
	latest []byte
	count  atomic.Int64

	sendBuf int
}

type hubMsg struct {
	data  []byte
	frame bool
}

// HubConfig sizes the hub queues. Zero values pick defaults.
type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int

	// BroadcastBuf is the hub inbound queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	inBuf := cfg.BroadcastBuf
	if inBuf <= 0 {
		inBuf = 128
	}
	return &Hub{
		logger:  logger,
		in:      make(chan hubMsg, inBuf),
		joins:   make(chan *Client),
		leaves:  make(chan *Client, 16),
		done:    make(chan struct{}),
		peers:   make(map[*Client]struct{}),
		sendBuf: sendBuf,
	}
}

// PublishFrame queues a frame envelope. The hub remembers it as the
// newest frame for clients that join later. It never blocks.
func (h *Hub) PublishFrame(msg []byte) { h.publish(hubMsg{data: msg, frame: true}) }

// PublishEvent queues a beat or cycle envelope. It never blocks.
func (h *Hub) PublishEvent(msg []byte) { h.publish(hubMsg{data: msg}) }

func (h *Hub) publish(m hubMsg) {
	select {
	case h.in <- m:
	default:
		h.logger.Warn("ws hub queue full, dropping message", "bytes", len(m.data), "frame", m.frame)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// join hands c to the hub. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.joins <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave asks the hub to forget c. Unknown or already dropped clients are
// ignored.
func (h *Hub) leave(c *Client) {
	select {
	case h.leaves <- c:
	case <-h.done:
	}
}

// Run owns the peer set until ctx is canceled, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			for c := range h.peers {
				h.drop(c, "shutdown")
			}
			h.logger.Info("ws hub stopped")
			return

		case c := <-h.joins:
			if h.latest != nil {
				select {
				case c.send <- h.latest:
				default:
				}
			}
			h.peers[c] = struct{}{}
			h.count.Store(int64(len(h.peers)))
			h.logger.Info("ws client joined", "remote_addr", c.remoteAddr, "clients", len(h.peers), "primed", h.latest != nil)

		case c := <-h.leaves:
			if _, ok := h.peers[c]; ok {
				h.drop(c, "closed")
			}

		case m := <-h.in:
			if m.frame {
				h.latest = m.data
			}
			for c := range h.peers {
				select {
				case c.send <- m.data:
				default:
					h.drop(c, "slow_client")
				}
			}
		}
	}
}

// drop removes c and closes its queue, which ends its write pump. Only Run
// calls it, so each queue is closed exactly once.
func (h *Hub) drop(c *Client, reason string) {
	delete(h.peers, c)
	h.count.Store(int64(len(h.peers)))
	close(c.send)
	h.logger.Info("ws client dropped", "remote_addr", c.remoteAddr, "reason", reason, "clients", len(h.peers))
}

// Client is one websocket connection. The hub writes to send; the write
// pump is the only writer on conn.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client sized by the hub's SendBuf.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = hub.logger
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait    = 5 * time.Second
	pongWait     = 30 * time.Second
	pingPeriod   = 20 * time.Second
	maxInboundSz = 512
)

func (c *Client) write(kind int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

func (c *Client) logExit(pump string, err error) {
	var ce *websocket.CloseError
	switch {
	case errors.Is(err, websocket.ErrCloseSent):
	case errors.As(err, &ce):
		c.logger.Debug("ws "+pump+" done", "remote_addr", c.remoteAddr, "code", ce.Code, "reason", ce.Text)
	default:
		c.logger.Debug("ws "+pump+" done", "remote_addr", c.remoteAddr, "error", err)
	}
}

// writePump drains send onto the connection and keeps it alive with
// pings. When the hub closes send it says goodbye and closes the
// connection, which also ends readPump.
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				c.hub.leave(c)
				return
			}

		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logExit("ping", err)
				c.hub.leave(c)
				return
			}
		}
	}
}

// readPump only exists to process pongs and notice the peer going away.
// Clients have nothing to say, so inbound messages are discarded.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxInboundSz)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			c.hub.leave(c)
			return
		}
	}
}
