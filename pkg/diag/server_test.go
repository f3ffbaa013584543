package diag

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dw3000-go/pkg/chip"
	"dw3000-go/pkg/coex"
	"dw3000-go/pkg/dwtime"
	"dw3000-go/pkg/status"
)

// fakeSource implements Source for testing.
type fakeSource struct {
	devID    uint32
	counters status.Counters
	state    coex.State
	last     dwtime.DTU
}

func (f *fakeSource) DevID() uint32                       { return f.devID }
func (f *fakeSource) Counters() status.Counters           { return f.counters }
func (f *fakeSource) CoexState() (coex.State, dwtime.DTU) { return f.state, f.last }

func newTestSource() *fakeSource {
	return &fakeSource{
		devID: chip.DEV_ID_DW3000,
		counters: status.Counters{
			RxTimeout: 4,
			BadCRC:    1,
		},
		state: coex.Armed,
		last:  0x1000,
	}
}

func newTestServer() *Server {
	return New(Config{
		Addr:   ":9822",
		Source: newTestSource(),
	})
}

func getResult(t *testing.T, s *Server, path string) map[string]any {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s status = %d", path, rec.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("response missing 'result' field: %v", resp)
	}
	return result
}

func TestServerInfo(t *testing.T) {
	s := newTestServer()
	result := getResult(t, s, "/server/info")

	if result["software_version"] != softwareVersion {
		t.Errorf("software_version = %v", result["software_version"])
	}
	if result["device_attached"] != true {
		t.Errorf("device_attached = %v", result["device_attached"])
	}
	if result["websocket_count"] != float64(0) {
		t.Errorf("websocket_count = %v", result["websocket_count"])
	}
}

func TestDeviceInfo(t *testing.T) {
	s := newTestServer()
	result := getResult(t, s, "/device/info")

	if result["dev_id"] != "0xdeca0302" {
		t.Errorf("dev_id = %v", result["dev_id"])
	}
	if result["model"] != "DW3000" {
		t.Errorf("model = %v", result["model"])
	}
	if result["coex_state"] != "armed" {
		t.Errorf("coex_state = %v", result["coex_state"])
	}
	if result["last_device_time_dtu"] != float64(0x1000) {
		t.Errorf("last_device_time_dtu = %v", result["last_device_time_dtu"])
	}
}

func TestDeviceInfoWithoutDevice(t *testing.T) {
	s := New(Config{Addr: ":9822"})

	req := httptest.NewRequest("GET", "/device/info", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDeviceCounters(t *testing.T) {
	s := newTestServer()
	result := getResult(t, s, "/device/counters")

	counters, ok := result["counters"].(map[string]any)
	if !ok {
		t.Fatalf("result missing 'counters': %v", result)
	}
	if counters["rx_timeout"] != float64(4) {
		t.Errorf("rx_timeout = %v", counters["rx_timeout"])
	}
	if counters["bad_crc"] != float64(1) {
		t.Errorf("bad_crc = %v", counters["bad_crc"])
	}
	// Every classifier counter appears, set or not.
	if len(counters) != 17 {
		t.Errorf("len(counters) = %d, want 17", len(counters))
	}
}

func TestMetricsMount(t *testing.T) {
	body := "# nothing here\n"
	s := New(Config{
		Source: newTestSource(),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}),
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != body {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodOptions, "/device/info", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestJSONRPC(t *testing.T) {
	s := newTestServer()

	testCases := []struct {
		name   string
		method string
	}{
		{"server.info", "server.info"},
		{"device.info", "device.info"},
		{"device.counters", "device.counters"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bodyBytes, _ := json.Marshal(map[string]any{
				"jsonrpc": "2.0",
				"method":  tc.method,
				"id":      1,
			})
			req := httptest.NewRequest("POST", "/jsonrpc", bytes.NewReader(bodyBytes))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}

			var resp jsonRPCResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Error != nil {
				t.Errorf("unexpected error: %v", resp.Error)
			}
			if resp.Result == nil {
				t.Error("expected result, got nil")
			}
		})
	}
}

func TestJSONRPCSubscribeOverHTTPRejected(t *testing.T) {
	s := newTestServer()

	bodyBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "stream.subscribe",
		"id":      1,
	})
	req := httptest.NewRequest("POST", "/jsonrpc", bytes.NewReader(bodyBytes))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp jsonRPCResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("subscribe over plain HTTP succeeded")
	}
}

func TestJSONRPCUnknownMethod(t *testing.T) {
	s := newTestServer()

	bodyBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "no.such.method",
		"id":      7,
	})
	req := httptest.NewRequest("POST", "/jsonrpc", bytes.NewReader(bodyBytes))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp jsonRPCResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected error response")
	}
}

// dialWS connects a websocket client to a running test server.
func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + server.URL[4:] + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("websocket read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(message, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func rpcCall(t *testing.T, conn *websocket.Conn, method string, id int) map[string]any {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      id,
	}); err != nil {
		t.Fatalf("websocket write: %v", err)
	}
	resp := readJSON(t, conn)
	if resp["error"] != nil {
		t.Fatalf("%s error: %v", method, resp["error"])
	}
	if resp["id"] != float64(id) {
		t.Fatalf("%s response id = %v, want %d", method, resp["id"], id)
	}
	return resp
}

func TestWebSocketRPC(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dialWS(t, server)
	resp := rpcCall(t, conn, "device.info", 1)

	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("response missing result: %v", resp)
	}
	if result["model"] != "DW3000" {
		t.Errorf("model = %v", result["model"])
	}
}

func TestWebSocketEventStream(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dialWS(t, server)

	resp := rpcCall(t, conn, "stream.subscribe", 1)
	result := resp["result"].(map[string]any)
	if result["subscribed"] != true {
		t.Fatalf("subscribed = %v", result["subscribed"])
	}
	if _, ok := result["counters"]; !ok {
		t.Error("subscribe response missing initial counters")
	}

	s.Publish(Event{Kind: EventRxGood, StatusLo: 0x4000, RxLen: 12, Ranging: true})
	s.Publish(Event{Kind: EventRxTimeout, StatusLo: 0x20000})

	first := readJSON(t, conn)
	if first["method"] != "notify_exchange" {
		t.Fatalf("method = %v", first["method"])
	}
	params := first["params"].([]any)
	ev := params[0].(map[string]any)
	if ev["kind"] != EventRxGood {
		t.Errorf("kind = %v", ev["kind"])
	}
	if ev["seq"] != float64(1) {
		t.Errorf("seq = %v", ev["seq"])
	}
	if ev["rx_len"] != float64(12) {
		t.Errorf("rx_len = %v", ev["rx_len"])
	}

	second := readJSON(t, conn)
	ev = second["params"].([]any)[0].(map[string]any)
	if ev["kind"] != EventRxTimeout {
		t.Errorf("kind = %v", ev["kind"])
	}
	if ev["seq"] != float64(2) {
		t.Errorf("seq = %v", ev["seq"])
	}
}

func TestWebSocketUnsubscribeStopsEvents(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dialWS(t, server)

	rpcCall(t, conn, "stream.subscribe", 1)
	rpcCall(t, conn, "stream.unsubscribe", 2)

	// Events published after the unsubscribe must not reach the client:
	// the next message on the wire is the response to the ping call.
	s.Publish(Event{Kind: EventTxDone})
	resp := rpcCall(t, conn, "server.info", 3)
	if resp["result"] == nil {
		t.Fatal("server.info result missing")
	}
}

func TestWebSocketClientDisconnectDropsSubscription(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dialWS(t, server)
	rpcCall(t, conn, "stream.subscribe", 1)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.subMu.RLock()
		n := len(s.subscribers)
		s.subMu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("subscription survived client disconnect")
}

func TestPublishWithoutSubscribers(t *testing.T) {
	s := newTestServer()
	for i := 0; i < 1000; i++ {
		s.Publish(Event{Kind: EventTxDone})
	}
	if got := s.seq.Load(); got != 1000 {
		t.Errorf("seq = %d, want 1000", got)
	}
}

func TestStopClosesClients(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn := dialWS(t, server)
	rpcCall(t, conn, "server.info", 1)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection stayed open after Stop")
	}
}
