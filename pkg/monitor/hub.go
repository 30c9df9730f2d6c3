// Websocket status hub
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package monitor

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/log"
	"plcmotion/pkg/reactor"
	"plcmotion/pkg/safety"
	"plcmotion/pkg/scheduler"
)

const (
	sendBuffer   = 64
	readLimit    = 64 * 1024
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Config configures a Hub.
type Config struct {
	// RateHz bounds snapshot captures and broadcasts. Default 10.
	RateHz float64
	// Safety adds the safety state to snapshots when set
	Safety  *safety.Manager
	Version string
}

// Hub captures snapshots from the tick loop and pushes them to websocket
// clients speaking JSON-RPC 2.0.
type Hub struct {
	sched   *scheduler.Scheduler
	safety  *safety.Manager
	version string
	limiter *rate.Limiter
	latest  atomic.Pointer[Snapshot]

	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[int64]*client
	nextID   int64

	startTime time.Time
	log       *log.Logger
}

// NewHub creates a hub for s.
func NewHub(s *scheduler.Scheduler, cfg Config) *Hub {
	hz := cfg.RateHz
	if hz <= 0 {
		hz = 10
	}
	h := &Hub{
		sched:     s,
		safety:    cfg.Safety,
		version:   cfg.Version,
		limiter:   rate.NewLimiter(rate.Limit(hz), 1),
		clients:   make(map[int64]*client),
		startTime: time.Now(),
		log:       log.GetLogger("monitor"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	if h.safety != nil {
		h.safety.OnStateChange(h.safetyChanged)
	}
	return h
}

// Hook returns the tick hook that captures and broadcasts snapshots.
func (h *Hub) Hook() reactor.TickHook {
	return func(tick uint32) {
		if !h.limiter.Allow() {
			return
		}
		h.Publish(h.capture())
	}
}

func (h *Hub) capture() *Snapshot {
	snap := Capture(h.sched)
	if h.safety != nil {
		st := h.safety.GetStatus()
		snap.Safety = &st
	}
	return snap
}

// Publish stores snap as the latest state and sends it to subscribers.
func (h *Hub) Publish(snap *Snapshot) {
	h.latest.Store(snap)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		ids, ok := c.subscription()
		if !ok {
			continue
		}
		c.notify("notify_status_update", snap.filter(ids))
	}
}

// Latest returns the most recent snapshot, or nil before the first one.
func (h *Hub) Latest() *Snapshot { return h.latest.Load() }

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(method string, params any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.notify(method, params)
	}
}

// AxisEvent is the payload of notify_axis_event.
type AxisEvent struct {
	Axis    int32   `json:"axis"`
	Event   string  `json:"event"`
	Code    string  `json:"code,omitempty"`
	Powered bool    `json:"powered,omitempty"`
	Home    float64 `json:"home_position,omitempty"`
}

// EmergencyStop implements axis.Observer.
func (h *Hub) EmergencyStop(a *axis.Axis, code errors.Code) {
	h.broadcast("notify_axis_event", AxisEvent{Axis: a.ID(), Event: "emergency_stop", Code: code.Name()})
}

// PowerChanged implements axis.Observer.
func (h *Hub) PowerChanged(a *axis.Axis, on bool) {
	h.broadcast("notify_axis_event", AxisEvent{Axis: a.ID(), Event: "power", Powered: on})
}

// Homed implements axis.Observer.
func (h *Hub) Homed(a *axis.Axis, homePos float64) {
	h.broadcast("notify_axis_event", AxisEvent{Axis: a.ID(), Event: "homed", Home: homePos})
}

func (h *Hub) safetyChanged(oldState, newState safety.ShutdownState) {
	h.broadcast("notify_safety_state", map[string]string{
		"old": oldState.String(),
		"new": newState.String(),
	})
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade: %v", err)
		return
	}

	c := &client{
		id:     atomic.AddInt64(&h.nextID, 1),
		conn:   conn,
		hub:    h,
		sendCh: make(chan any, sendBuffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.log.WithFields(log.Fields{"client": c.id, "remote": r.RemoteAddr}).Info("websocket client connected")

	go c.writePump()
	c.readPump()
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.log.WithField("client", c.id).Info("websocket client disconnected")
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
}

// JSON-RPC 2.0 structures

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	rpcParseError   = -32700
	rpcMethodError  = -32000
	rpcNoSuchMethod = -32601
)

var errNoSuchMethod = stderrors.New("method not found")

func (h *Hub) dispatch(c *client, method string, params map[string]any) (any, error) {
	switch method {
	case "server.info":
		return map[string]any{
			"version":        h.version,
			"frequency":      h.sched.Frequency(),
			"clients":        h.Clients(),
			"uptime_seconds": time.Since(h.startTime).Seconds(),
		}, nil
	case "motion.status":
		ids, err := axisIDs(params)
		if err != nil {
			return nil, err
		}
		snap := h.Latest()
		if snap == nil {
			return nil, fmt.Errorf("no snapshot captured yet")
		}
		return snap.filter(ids), nil
	case "motion.subscribe":
		ids, err := axisIDs(params)
		if err != nil {
			return nil, err
		}
		c.subscribe(ids)
		if snap := h.Latest(); snap != nil {
			return snap.filter(ids), nil
		}
		return map[string]any{"subscribed": true}, nil
	case "motion.unsubscribe":
		c.unsubscribe()
		return map[string]any{"subscribed": false}, nil
	case "safety.status":
		if h.safety == nil {
			return nil, fmt.Errorf("safety manager not configured")
		}
		return h.safety.GetStatus(), nil
	default:
		return nil, fmt.Errorf("%w: %s", errNoSuchMethod, method)
	}
}

// axisIDs reads the optional "axes" parameter, a list of axis ids.
func axisIDs(params map[string]any) (map[int32]bool, error) {
	raw, ok := params["axes"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("'axes' must be a list of axis ids")
	}
	ids := make(map[int32]bool, len(list))
	for _, v := range list {
		f, ok := v.(float64)
		if !ok || f != float64(int32(f)) {
			return nil, fmt.Errorf("invalid axis id %v", v)
		}
		ids[int32(f)] = true
	}
	return ids, nil
}

type client struct {
	id     int64
	conn   *websocket.Conn
	hub    *Hub
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex

	subMu      sync.Mutex
	subscribed bool
	axes       map[int32]bool
}

func (c *client) subscribe(ids map[int32]bool) {
	c.subMu.Lock()
	c.subscribed, c.axes = true, ids
	c.subMu.Unlock()
}

func (c *client) unsubscribe() {
	c.subMu.Lock()
	c.subscribed, c.axes = false, nil
	c.subMu.Unlock()
}

func (c *client) subscription() (map[int32]bool, bool) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.axes, c.subscribed
}

// Send queues msg. It never blocks; a full queue drops the message.
func (c *client) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.hub.log.WithField("client", c.id).Debug("dropping message, send queue full")
	}
}

func (c *client) notify(method string, params any) {
	c.Send(rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
}

// Close closes the connection once.
func (c *client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

func (c *client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.log.Warn("websocket write error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) handleMessage(data []byte) {
	var req rpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(nil, rpcParseError, "Parse error")
		return
	}

	result, err := c.hub.dispatch(c, req.Method, req.Params)
	if err != nil {
		code := rpcMethodError
		if stderrors.Is(err, errNoSuchMethod) {
			code = rpcNoSuchMethod
		}
		c.sendError(req.ID, code, err.Error())
		return
	}
	c.Send(rpcResponse{JSONRPC: "2.0", Result: result, ID: req.ID})
}

func (c *client) sendError(id any, code int, message string) {
	c.Send(rpcResponse{
		JSONRPC: "2.0",
		Error:   &rpcError{Code: code, Message: message},
		ID:      id,
	})
}

var _ axis.Observer = (*Hub)(nil)
