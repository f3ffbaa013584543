// Package diag serves live radio diagnostics over HTTP and websockets.
// Bench tooling connects to watch exchange outcomes and receive-error
// counters while a ranging session runs.
package diag

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dw3000-go/pkg/chip"
	"dw3000-go/pkg/coex"
	"dw3000-go/pkg/dwtime"
	"dw3000-go/pkg/status"
)

const softwareVersion = "dw3000-go 0.1.0"

// countersInterval is how often subscribed clients get a counters push.
const countersInterval = time.Second

// Source is the device surface the server reads. *device.Device satisfies
// it. The methods are all snapshot reads; none of them touches the bus, so
// the broadcast loop never contends with exchange traffic.
type Source interface {
	DevID() uint32
	Counters() status.Counters
	CoexState() (coex.State, dwtime.DTU)
}

// Event kinds reported on the exchange stream.
const (
	EventTxDone    = "tx_done"
	EventRxGood    = "rx_good"
	EventRxTimeout = "rx_timeout"
	EventRxError   = "rx_error"
)

// Event is one exchange outcome as delivered to stream subscribers.
// Publish stamps Seq and, when zero, Time.
type Event struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"`
	StatusLo uint32    `json:"status_lo"`
	StatusHi uint32    `json:"status_hi"`

	// Set for rx_good events only.
	RxLen   int  `json:"rx_len,omitempty"`
	Ranging bool `json:"ranging,omitempty"`
}

// Config holds diagnostic server configuration.
type Config struct {
	// HTTP address to listen on (e.g. ":9822").
	Addr string

	// Source supplies device snapshots. Nil runs the server without a
	// device; event publishing still works.
	Source Source

	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	Log *zerolog.Logger
}

// Server exposes device diagnostics over JSON-RPC, REST and a websocket
// event stream.
type Server struct {
	source Source
	log    zerolog.Logger

	httpServer *http.Server
	addr       string
	metrics    http.Handler

	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*wsClient
	wsClientMu sync.RWMutex
	nextWSID   atomic.Int64

	// Stream subscriptions by client id.
	subscribers map[int64]struct{}
	subMu       sync.RWMutex

	seq       atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
	startTime time.Time
}

// New creates a diagnostic server. Call Start to serve, or mount Handler
// on an existing listener.
func New(cfg Config) *Server {
	logger := zerolog.Nop()
	if cfg.Log != nil {
		logger = *cfg.Log
	}
	s := &Server{
		source:      cfg.Source,
		log:         logger,
		addr:        cfg.Addr,
		metrics:     cfg.Metrics,
		wsClients:   make(map[int64]*wsClient),
		subscribers: make(map[int64]struct{}),
		done:        make(chan struct{}),
		startTime:   time.Now(),
	}

	// Bench frontends are served from arbitrary origins.
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return s
}

// Handler returns the full route tree. Useful for tests and for embedding
// the server under an existing mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/jsonrpc", s.handleJSONRPC)

	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/device/info", s.handleDeviceInfo)
	mux.HandleFunc("/device/counters", s.handleCounters)

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return s.corsMiddleware(mux)
}

// Start serves until Stop is called. It blocks.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	s.log.Info().Str("addr", s.addr).Msg("diagnostic server starting")

	go s.countersLoop()

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes all websocket clients and shuts the listener down.
func (s *Server) Stop() error {
	s.closeOnce.Do(func() { close(s.done) })

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[int64]*wsClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Publish delivers an exchange outcome to all stream subscribers. Safe to
// call from the exchange goroutine; slow clients drop rather than block.
func (s *Server) Publish(ev Event) {
	ev.Seq = s.seq.Add(1)
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.notifySubscribers(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notify_exchange",
		"params":  []any{ev},
	})
}

func (s *Server) notifySubscribers(msg any) {
	s.subMu.RLock()
	ids := make([]int64, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	s.subMu.RUnlock()

	for _, id := range ids {
		s.wsClientMu.RLock()
		client, ok := s.wsClients[id]
		s.wsClientMu.RUnlock()
		if ok {
			client.Send(msg)
		}
	}
}

// countersLoop pushes counter snapshots to subscribers once a second.
func (s *Server) countersLoop() {
	ticker := time.NewTicker(countersInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.broadcastCounters()
		case <-s.done:
			return
		}
	}
}

func (s *Server) broadcastCounters() {
	if s.source == nil {
		return
	}
	s.subMu.RLock()
	idle := len(s.subscribers) == 0
	s.subMu.RUnlock()
	if idle {
		return
	}

	s.notifySubscribers(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notify_counters",
		"params":  []any{countersMap(s.source.Counters()), s.eventtime()},
	})
}

func (s *Server) eventtime() float64 {
	return float64(time.Since(s.startTime).Milliseconds()) / 1000.0
}

func countersMap(c status.Counters) map[string]uint32 {
	m := make(map[string]uint32, 17)
	c.Each(func(name string, value uint32) {
		m[name] = value
	})
	return m
}

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests over plain HTTP.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONRPCError(w, nil, -32700, "Parse error")
		return
	}

	result, err := s.dispatchMethod(req.Method, nil)
	if err != nil {
		s.writeJSONRPCError(w, req.ID, -32000, err.Error())
		return
	}

	s.writeJSONRPCResult(w, req.ID, result)
}

// dispatchMethod routes a method call. client is nil for plain-HTTP calls,
// which cannot hold stream subscriptions.
func (s *Server) dispatchMethod(method string, client *wsClient) (any, error) {
	switch method {
	case "server.info":
		return s.methodServerInfo()
	case "device.info":
		return s.methodDeviceInfo()
	case "device.counters":
		return s.methodCounters()
	case "stream.subscribe":
		return s.methodSubscribe(client)
	case "stream.unsubscribe":
		return s.methodUnsubscribe(client)
	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

// Method implementations

func (s *Server) methodServerInfo() (any, error) {
	hostname, _ := os.Hostname()
	s.wsClientMu.RLock()
	clients := len(s.wsClients)
	s.wsClientMu.RUnlock()

	return map[string]any{
		"hostname":         hostname,
		"software_version": softwareVersion,
		"websocket_count":  clients,
		"device_attached":  s.source != nil,
		"uptime":           s.eventtime(),
	}, nil
}

func (s *Server) methodDeviceInfo() (any, error) {
	if s.source == nil {
		return nil, fmt.Errorf("no device attached")
	}
	id := s.source.DevID()
	state, last := s.source.CoexState()

	return map[string]any{
		"dev_id":               fmt.Sprintf("%#08x", id),
		"model":                chip.DevIDName(id),
		"coex_state":           state.String(),
		"last_device_time_dtu": uint32(last),
	}, nil
}

func (s *Server) methodCounters() (any, error) {
	if s.source == nil {
		return nil, fmt.Errorf("no device attached")
	}
	return map[string]any{
		"counters":  countersMap(s.source.Counters()),
		"eventtime": s.eventtime(),
	}, nil
}

func (s *Server) methodSubscribe(client *wsClient) (any, error) {
	if client == nil {
		return nil, fmt.Errorf("stream subscription requires a websocket connection")
	}

	s.subMu.Lock()
	s.subscribers[client.id] = struct{}{}
	s.subMu.Unlock()

	// Initial snapshot so the client does not wait a full push period.
	result := map[string]any{"subscribed": true}
	if s.source != nil {
		result["counters"] = countersMap(s.source.Counters())
	}
	return result, nil
}

func (s *Server) methodUnsubscribe(client *wsClient) (any, error) {
	if client == nil {
		return nil, fmt.Errorf("stream subscription requires a websocket connection")
	}

	s.subMu.Lock()
	delete(s.subscribers, client.id)
	s.subMu.Unlock()

	return map[string]any{"subscribed": false}, nil
}

// REST endpoint handlers

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodServerInfo()
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodDeviceInfo()
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodCounters()
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

// corsMiddleware allows cross-origin requests from bench frontends.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    -32000,
			"message": err.Error(),
		},
	})
}

func (s *Server) writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

func (s *Server) writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}

// wsClient is one websocket connection.
type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Server) newWSClient(conn *websocket.Conn) *wsClient {
	id := s.nextWSID.Add(1)
	return &wsClient{
		id:     id,
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

// Send queues a message for the client. A full queue drops the message;
// diagnostics must never stall the exchange path.
func (c *wsClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.log.Warn().Int64("client", c.id).Msg("dropping message, send queue full")
	}
}

// Close closes the client connection.
func (c *wsClient) Close() {
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

// readPump reads requests from the websocket connection.
func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warn().Int64("client", c.id).Err(err).Msg("websocket read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump sends queued messages and keepalive pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.log.Warn().Int64("client", c.id).Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(nil, -32700, "Parse error")
		return
	}

	result, err := c.server.dispatchMethod(req.Method, c)
	if err != nil {
		c.sendError(req.ID, -32000, err.Error())
		return
	}

	c.Send(jsonRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

func (c *wsClient) sendError(id any, code int, message string) {
	c.Send(jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}

// handleWebSocket upgrades the connection and runs the pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := s.newWSClient(conn)

	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()

	s.log.Debug().Int64("client", client.id).Msg("websocket client connected")

	go client.writePump()
	client.readPump() // Blocks until the connection closes.
}

// removeClient drops a client and its stream subscription.
func (s *Server) removeClient(client *wsClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()

	s.subMu.Lock()
	delete(s.subscribers, client.id)
	s.subMu.Unlock()

	s.log.Debug().Int64("client", client.id).Msg("websocket client disconnected")
}
