package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sunmao-dev/sunmao/pkg/runtime"
	"github.com/sunmao-dev/sunmao/pkg/schema"
	"github.com/sunmao-dev/sunmao/pkg/snapshot"
	"github.com/sunmao-dev/sunmao/pkg/state"
)

const testApp = `{
  "kind": "Application",
  "version": "example/v1",
  "metadata": {"name": "greeter"},
  "spec": {
    "components": [
      {"id": "input1", "type": "core/v1/input", "properties": {"placeholder": "Name"}, "traits": []},
      {"id": "text1", "type": "core/v1/text", "properties": {"value": {"raw": "Hello {{ input1.value }}!"}}, "traits": []}
    ]
  }
}`

type fixture struct {
	server *Server
	http   *httptest.Server
}

func newRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	app, err := schema.Parse([]byte(testApp), schema.FormatJSON)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := state.New(nil, state.WithLogger(logger))
	mgr.Store().Set("input1", map[string]any{"value": "world"})
	return runtime.New(app, mgr, logger)
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	s := New(newRuntime(t), &Config{AppName: "greeter"}, opts...)
	require.NoError(t, s.Start(context.Background()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		ts.Close()
	})
	return &fixture{server: s, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func textValue(t *testing.T, components []runtime.RenderedComponent) any {
	t.Helper()
	for _, c := range components {
		if c.ID == "text1" {
			return c.Properties.(map[string]any)["value"].(map[string]any)["raw"]
		}
	}
	t.Fatal("text1 not rendered")
	return nil
}

func TestRenderAndWriteState(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/app", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var components []runtime.RenderedComponent
	require.NoError(t, json.Unmarshal(body, &components))
	require.Len(t, components, 2)
	assert.Equal(t, "Hello world!", textValue(t, components))

	resp, body = f.do(t, http.MethodPatch, "/api/store/input1", `{"value":"sunmao"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"value":"sunmao"}`, string(body))

	resp, body = f.do(t, http.MethodGet, "/api/app?component=text1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var text runtime.RenderedComponent
	require.NoError(t, json.Unmarshal(body, &text))
	assert.Equal(t, "Hello sunmao!", textValue(t, []runtime.RenderedComponent{text}))

	resp, _ = f.do(t, http.MethodPut, "/api/store/input1", `{"value":"again","extra":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = f.do(t, http.MethodGet, "/api/store", "")
	assert.JSONEq(t, `{"input1":{"value":"again","extra":1}}`, string(body))
}

func TestEval(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/eval", `{"expression":"{{ input1.value.toUpperCase() + n }}","scope":{"n":1}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"value":"WORLD1"}`, string(body))

	_, body = f.do(t, http.MethodPost, "/api/eval", `{"expression":"{{ missing.value }}"}`)
	var res evalResponse
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Nil(t, res.Value)
	assert.Contains(t, res.Error, "missing")
}

func TestErrors(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPatch, "/api/store/input1", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "E304", e.Code)

	resp, body = f.do(t, http.MethodGet, "/api/app?component=nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "E301", e.Code)

	resp, _ = f.do(t, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotStarted(t *testing.T) {
	s := New(newRuntime(t), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/app", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "E300")
}

func TestSlots(t *testing.T) {
	f := newFixture(t)
	mgr := f.server.Runtime().Manager()

	resp, _ := f.do(t, http.MethodPut, "/api/slots/list1_content_0", `{"$i":0,"title":"first"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	v, ok := mgr.SlotStore().Peek("list1_content_0")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"$i": float64(0), "title": "first"}, v)

	resp, _ = f.do(t, http.MethodDelete, "/api/slots/list1_content_0", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok = mgr.SlotStore().Peek("list1_content_0")
	assert.False(t, ok)
}

func dial(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return ws
}

func read(t *testing.T, ws *websocket.Conn) serverMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg serverMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestWebSocket(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
	f := newFixture(t)
	ws := dial(t, f)
	defer ws.Close()

	hello := read(t, ws)
	assert.Equal(t, msgHello, hello.Type)
	assert.NotEmpty(t, hello.Connection)

	render := read(t, ws)
	require.Equal(t, msgRender, render.Type)
	assert.Equal(t, "Hello world!", textValue(t, render.Components))
	assert.Eventually(t, func() bool { return f.server.Connections() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, ws.WriteJSON(clientMessage{
		Type:      msgSetState,
		Component: "input1",
		State:     map[string]any{"value": "ws"},
		Merge:     true,
	}))
	update := read(t, ws)
	require.Equal(t, msgUpdate, update.Type)
	require.NotNil(t, update.Update)
	assert.Equal(t, "text1", update.Update.Component)
	assert.Equal(t, -1, update.Update.Trait)
	assert.Equal(t, []any{"value", "raw"}, update.Update.Path)
	assert.Equal(t, "Hello ws!", update.Update.Value)

	require.NoError(t, ws.WriteJSON(clientMessage{Type: msgEval, ID: "7", Expression: "{{ input1.value.length }}"}))
	result := read(t, ws)
	assert.Equal(t, msgResult, result.Type)
	assert.Equal(t, "7", result.ID)
	assert.Equal(t, float64(2), result.Value)

	require.NoError(t, ws.WriteJSON(clientMessage{Type: "bogus", ID: "8"}))
	bad := read(t, ws)
	assert.Equal(t, msgError, bad.Type)
	assert.Contains(t, bad.Error, ErrUnknownMessage.Error())

	require.NoError(t, f.server.Shutdown(context.Background()))
	f.http.Close()
	assert.Equal(t, 0, f.server.Connections())
}

func TestWebSocketBroadcast(t *testing.T) {
	f := newFixture(t)
	a, b := dial(t, f), dial(t, f)
	defer a.Close()
	defer b.Close()
	for _, ws := range []*websocket.Conn{a, b} {
		read(t, ws) // hello
		read(t, ws) // render
	}

	resp, _ := f.do(t, http.MethodPut, "/api/store/input1", `{"value":"all"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, ws := range []*websocket.Conn{a, b} {
		msg := read(t, ws)
		require.Equal(t, msgUpdate, msg.Type)
		assert.Equal(t, "Hello all!", msg.Update.Value)
	}
}

func TestSnapshots(t *testing.T) {
	store := snapshot.NewMemoryStore()
	saved, err := snapshot.Encode("greeter", map[string]any{"input1": map[string]any{"value": "restored"}}, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "greeter", saved))

	f := newFixture(t, WithSnapshots(store))
	_, body := f.do(t, http.MethodPost, "/api/eval", `{"expression":"{{ input1.value }}"}`)
	assert.JSONEq(t, `{"value":"restored"}`, string(body))

	f.do(t, http.MethodPatch, "/api/store/input1", `{"value":"changed"}`)
	require.NoError(t, f.server.Shutdown(context.Background()))

	data, err := store.Load(context.Background(), "greeter")
	require.NoError(t, err)
	snap, err := snapshot.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "greeter", snap.App)
	assert.Equal(t, map[string]any{"value": "changed"}, snap.State["input1"])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithRegistry(reg))

	f.do(t, http.MethodGet, "/api/store", "")
	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `sunmao_http_requests_total{method="GET",route="/api/store",status="2xx"} 1`)
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	ws := dial(t, f)
	defer ws.Close()
	read(t, ws)
	read(t, ws)

	app, err := schema.Parse([]byte(strings.Replace(testApp, "Hello", "Bye", 1)), schema.FormatJSON)
	require.NoError(t, err)
	require.NoError(t, f.server.Reload(context.Background(), app))

	msg := read(t, ws)
	require.Equal(t, msgRender, msg.Type)
	assert.Equal(t, "Bye world!", textValue(t, msg.Components))
}

func TestConcurrentEvalWritesAndReload(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
	f := newFixture(t)
	ws := dial(t, f)
	defer ws.Close()
	read(t, ws)
	read(t, ws)

	app, err := schema.Parse([]byte(testApp), schema.FormatJSON)
	require.NoError(t, err)

	send := func(method, path, body string) {
		req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
		if !assert.NoError(t, err) {
			return
		}
		resp, err := http.DefaultClient.Do(req)
		if !assert.NoError(t, err) {
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "%s %s", method, path)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			send(http.MethodPut, "/api/store/input1", `{"value":"busy"}`)
		}()
		go func() {
			defer wg.Done()
			send(http.MethodPost, "/api/eval", `{"expression":"{{ input1.value + '?' }}"}`)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.server.Reload(context.Background(), app))
	}()
	wg.Wait()

	send(http.MethodPut, "/api/store/input1", `{"value":"last"}`)
	for {
		msg := read(t, ws)
		if msg.Type == msgUpdate && msg.Update.Value == "Hello last!" {
			break
		}
	}
	text, err := f.server.Runtime().Component("text1")
	require.NoError(t, err)
	assert.Equal(t, "Hello last!", textValue(t, []runtime.RenderedComponent{text}))

	require.NoError(t, f.server.Shutdown(context.Background()))
	f.http.Close()
}

func TestRun(t *testing.T) {
	store := snapshot.NewMemoryStore()
	s := New(newRuntime(t), &Config{
		Address:          "127.0.0.1:0",
		AppName:          "greeter",
		SnapshotInterval: 10 * time.Millisecond,
	}, WithSnapshots(store), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, s.Runtime().Running())
	assert.ErrorIs(t, s.Start(context.Background()), ErrServerClosed)
}

func TestSameOriginCheck(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://example.com", true},
		{"https://example.com", true},
		{"http://evil.com", false},
		{"://bad", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, SameOriginCheck(r), tt.origin)
	}
}

func TestConnError(t *testing.T) {
	err := &ConnError{ConnID: "abc", Op: "enqueue", Err: ErrSendBufferFull}
	assert.Equal(t, "server: conn abc: enqueue: server: send buffer full", err.Error())
	assert.ErrorIs(t, err, ErrSendBufferFull)
	assert.Equal(t, "server: eval: unexpected EOF", (&ConnError{Op: "eval", Err: io.ErrUnexpectedEOF}).Error())
}

func TestConfigDefaults(t *testing.T) {
	c := (&Config{Address: ":9000"}).withDefaults()
	assert.Equal(t, ":9000", c.Address)
	assert.Equal(t, DefaultConfig().SendBuffer, c.SendBuffer)
	assert.NotNil(t, c.CheckOrigin)

	d := (*Config)(nil).withDefaults()
	assert.Equal(t, DefaultConfig().Address, d.Address)
}
