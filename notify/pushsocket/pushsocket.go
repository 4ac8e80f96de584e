// Copyright 2026 Prometheus Team
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pushsocket delivers notifications to websocket subscribers such
// as dashboards.
package pushsocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/alertcore/alertcore/config"
	"github.com/alertcore/alertcore/notify"
	"github.com/alertcore/alertcore/types"
)

const (
	// writeTimeout is the deadline for a single write to a subscriber.
	writeTimeout = 10 * time.Second
	// pongWait is how long to wait for a pong before treating the connection
	// as dead.
	pongWait = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 512
)

var (
	errNoSubscribers = errors.New("no subscribers connected")
	errClosed        = errors.New("push socket closed")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are checked by the CORS layer of the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is the JSON envelope sent to subscribers.
type Event struct {
	Event string          `json:"event"`
	Data  *notify.Message `json:"data"`
}

// Hub is a notify.Channel broadcasting every notification to the connected
// websocket subscribers.
type Hub struct {
	id     string
	conf   *config.PushSocketConfig
	logger *slog.Logger

	mtx     sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	delivered *atomic.Uint64
	dropped   *atomic.Uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	// severities the subscriber asked for. Empty means all.
	severities map[types.Severity]struct{}
}

func (c *client) wants(sev types.Severity) bool {
	if len(c.severities) == 0 {
		return true
	}
	_, ok := c.severities[sev]
	return ok
}

// New returns a Hub for the channel with the given ID.
func New(id string, conf *config.PushSocketConfig, l *slog.Logger) *Hub {
	if conf == nil {
		c := config.DefaultPushSocketConfig
		conf = &c
	}
	return &Hub{
		id:        id,
		conf:      conf,
		logger:    l,
		clients:   make(map[*client]struct{}),
		delivered: atomic.NewUint64(0),
		dropped:   atomic.NewUint64(0),
	}
}

// ID implements notify.Channel.
func (h *Hub) ID() string { return h.id }

// Kind implements notify.Channel.
func (h *Hub) Kind() notify.Kind { return notify.KindPushSocket }

// Config returns the configuration the hub was built with.
func (h *Hub) Config() config.PushSocketConfig { return *h.conf }

// Notify queues msg for every subscriber interested in its severity.
// Subscribers whose buffer is full are disconnected. Without subscribers
// delivery succeeds unless the channel requires them.
func (h *Hub) Notify(ctx context.Context, msg *notify.Message) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	data, err := json.Marshal(Event{Event: "alert", Data: msg})
	if err != nil {
		return false, err
	}

	var sent int
	var slow []*client
	h.mtx.RLock()
	if h.closed {
		h.mtx.RUnlock()
		return false, errClosed
	}
	for c := range h.clients {
		if !c.wants(msg.Severity) {
			continue
		}
		select {
		case c.send <- data:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mtx.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow push socket subscriber", "channel", h.id, "remote", c.conn.RemoteAddr())
		h.dropped.Inc()
		h.unregister(c)
	}
	h.delivered.Add(uint64(sent))

	if sent == 0 && h.conf.RequireSubscribers {
		return true, errNoSubscribers
	}
	h.logger.Debug("Push socket notification queued", "channel", h.id, "alert", msg, "subscribers", sent)
	return false, nil
}

// ServeHTTP upgrades the request to a websocket and streams notifications
// until the connection closes. The optional severity query parameter, a
// comma separated list, restricts the stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sevs := map[types.Severity]struct{}{}
	for _, v := range r.URL.Query()["severity"] {
		for _, s := range strings.Split(v, ",") {
			sev, err := types.ParseSeverity(strings.TrimSpace(s))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			sevs[sev] = struct{}{}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		return
	}
	c := &client{
		conn:       conn,
		send:       make(chan []byte, h.conf.SendBuffer),
		severities: sevs,
	}
	if !h.register(c) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")) //nolint:errcheck
		conn.Close()
		return
	}
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return len(h.clients)
}

// Delivered returns the number of messages queued to subscribers.
func (h *Hub) Delivered() uint64 { return h.delivered.Load() }

// Dropped returns the number of subscribers disconnected for being slow.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close disconnects every subscriber. Later notifications fail.
func (h *Hub) Close() error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// writePump forwards queued messages to the connection and keeps it alive
// with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and detects disconnects. It blocks until
// the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
