// Package feed fans computed glucose statuses out to WebSocket subscribers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jwulff/glucostatus/internal/glucose"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub owns the subscriber set. All mutation happens on the goroutine
// running Run.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	publish    chan []byte
	count      chan chan int
	done       chan struct{}
	latest     []byte
	log        logrus.FieldLogger
}

// NewHub creates a hub. Call Run before publishing.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		publish:    make(chan []byte),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			if h.latest != nil {
				c.send <- h.latest
			}
			h.clients[c] = true
			h.log.WithField("clients", len(h.clients)).Debug("client connected")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.WithField("clients", len(h.clients)).Debug("client disconnected")
			}
		case msg := <-h.publish:
			h.latest = msg
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client, it catches up on the next status
					h.log.Debug("dropped status for slow client")
				}
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Publish sends status to every subscriber and keeps it for new ones.
func (h *Hub) Publish(ctx context.Context, status *glucose.Status) error {
	msg, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	select {
	case h.publish <- msg:
		return nil
	case <-h.done:
		return fmt.Errorf("feed hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Handler returns a mux serving the feed at /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	return mux
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound messages and unsubscribes on disconnect.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
