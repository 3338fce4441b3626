package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sunmao-dev/sunmao/pkg/middleware"
	"github.com/sunmao-dev/sunmao/pkg/runtime"
)

// Message types.
const (
	msgHello    = "hello"
	msgRender   = "render"
	msgUpdate   = "update"
	msgResult   = "result"
	msgError    = "error"
	msgSetState = "setState"
	msgEval     = "eval"
	msgSetSlot  = "setSlot"
)

// clientMessage is a message sent by a client.
//
//	{"type":"setState","component":"input1","state":{"value":"hi"},"merge":true}
//	{"type":"eval","id":"1","expression":"{{ input1.value }}","scope":{}}
//	{"type":"setSlot","key":"list1_content_0","vars":{"$i":0}}
//
// A setSlot message without vars clears the slot.
type clientMessage struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Component  string         `json:"component,omitempty"`
	State      any            `json:"state,omitempty"`
	Merge      bool           `json:"merge,omitempty"`
	Expression string         `json:"expression,omitempty"`
	Scope      map[string]any `json:"scope,omitempty"`
	Key        string         `json:"key,omitempty"`
	Vars       map[string]any `json:"vars,omitempty"`
}

// serverMessage is a message sent to clients.
type serverMessage struct {
	Type       string                      `json:"type"`
	Connection string                      `json:"connection,omitempty"`
	ID         string                      `json:"id,omitempty"`
	Components []runtime.RenderedComponent `json:"components,omitempty"`
	Update     *runtime.Update             `json:"update,omitempty"`
	Value      any                         `json:"value,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// conn is one WebSocket client.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue queues data without blocking. A client whose queue is full is
// disconnected.
func (c *conn) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrServerClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.close()
		return &ConnError{ConnID: c.id, Op: "enqueue", Err: ErrSendBufferFull}
	}
}

// hub tracks the open connections.
type hub struct {
	config  *Config
	metrics *middleware.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
	wg     sync.WaitGroup
}

func newHub(config *Config, metrics *middleware.Metrics, logger *slog.Logger) *hub {
	return &hub{
		config:  config,
		metrics: metrics,
		logger:  logger,
		conns:   make(map[string]*conn),
	}
}

// add registers c and queues the messages greet returns; it fails once the
// hub is closed. greet runs under the hub lock, so no broadcast can slip in
// between it and registration. Each registered connection holds two wait
// group slots, one per pump.
func (h *hub) add(c *conn, greet func() []serverMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.id] = c
	h.wg.Add(2)
	for _, msg := range greet() {
		h.send(c, msg)
	}
	return true
}

func (h *hub) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *hub) snapshot() []*conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// broadcast sends msg to every connection. It never blocks, so it is safe
// to call from runtime callbacks.
func (h *hub) broadcast(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode message failed", "type", msg.Type, "error", err)
		return
	}
	for _, c := range h.snapshot() {
		err := c.enqueue(data)
		switch {
		case err == nil:
			h.metrics.RecordMessage("out", msg.Type)
		case err != ErrServerClosed:
			h.logger.Warn("dropping slow client", "conn", c.id, "error", err)
			h.metrics.RecordWebSocketError("send_buffer_full")
		}
	}
}

// send queues msg for one connection.
func (h *hub) send(c *conn, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode message failed", "type", msg.Type, "error", err)
		return
	}
	if err := c.enqueue(data); err == nil {
		h.metrics.RecordMessage("out", msg.Type)
	}
}

// close disconnects every client and waits for their pumps to exit.
func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	h.wg.Wait()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an error status.
		s.logger.Debug("websocket upgrade failed", "error", err)
		s.metrics.RecordWebSocketError("upgrade")
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, s.config.SendBuffer),
		done: make(chan struct{}),
	}
	greet := func() []serverMessage {
		return []serverMessage{{Type: msgHello, Connection: c.id}, s.renderMessage()}
	}
	if !s.hub.add(c, greet) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		ws.Close()
		return
	}
	s.metrics.RecordConnect()
	s.logger.Debug("client connected", "conn", c.id, "remote", r.RemoteAddr)

	go s.writePump(c)
	s.readPump(c)

	c.close()
	s.hub.remove(c)
	s.metrics.RecordDisconnect()
	s.logger.Debug("client disconnected", "conn", c.id)
	s.hub.wg.Done()
}

// readPump reads client messages until the connection fails.
func (s *Server) readPump(c *conn) {
	pongWait := 2 * s.config.PingInterval
	c.ws.SetReadLimit(s.config.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "conn", c.id, "error", err)
				s.metrics.RecordWebSocketError("read")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		s.handleMessage(c, data)
	}
}

// writePump writes queued messages and pings until the connection is
// closed, then closes the socket.
func (s *Server) writePump(c *conn) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		s.hub.wg.Done()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.metrics.RecordWebSocketError("write")
				c.close()
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout)); err != nil {
				c.close()
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (s *Server) handleMessage(c *conn, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.metrics.RecordWebSocketError("decode")
		s.hub.send(c, serverMessage{Type: msgError, Error: err.Error()})
		return
	}
	switch msg.Type {
	case msgSetState, msgSetSlot, msgEval:
		s.metrics.RecordMessage("in", msg.Type)
	default:
		s.metrics.RecordMessage("in", "unknown")
	}

	switch msg.Type {
	case msgSetState:
		if msg.Component == "" {
			s.hub.send(c, serverMessage{Type: msgError, ID: msg.ID, Error: "setState: missing component"})
			return
		}
		s.mu.Lock()
		if partial, ok := msg.State.(map[string]any); ok && msg.Merge {
			s.rt.MergeState(msg.Component, partial)
		} else {
			s.rt.SetState(msg.Component, msg.State)
		}
		s.mu.Unlock()

	case msgSetSlot:
		s.mu.Lock()
		if msg.Vars == nil {
			s.rt.ClearSlot(msg.Key)
		} else {
			s.rt.SetSlot(msg.Key, msg.Vars)
		}
		s.mu.Unlock()

	case msgEval:
		res := s.evaluate(msg.Expression, msg.Scope)
		s.hub.send(c, serverMessage{Type: msgResult, ID: msg.ID, Value: res.Value, Error: res.Error})

	default:
		err := &ConnError{ConnID: c.id, Op: msg.Type, Err: ErrUnknownMessage}
		s.hub.send(c, serverMessage{Type: msgError, ID: msg.ID, Error: err.Error()})
	}
}
