package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestRouter(mws ...func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mws...)
	r.Get("/api/store/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	return r
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPrometheusMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))
	r := newTestRouter(m.Handler)

	serve(r, "/api/store/input1")
	serve(r, "/api/store/text1")
	serve(r, "/boom")
	serve(r, "/nowhere")

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/store/{id}", "GET", "2xx")); got != 2 {
		t.Fatalf("requests_total(store)=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("/boom", "GET", "5xx")); got != 1 {
		t.Fatalf("requests_total(boom)=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requestErrors.WithLabelValues("/boom")); got != 1 {
		t.Fatalf("request_errors_total(boom)=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("unmatched", "GET", "4xx")); got != 1 {
		t.Fatalf("requests_total(unmatched)=%v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.requestDuration); got != 3 {
		t.Fatalf("duration series=%d, want 3", got)
	}
}

func TestMetricsRecordFunctions(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))

	m.RecordConnect()
	m.RecordConnect()
	m.RecordDisconnect()
	m.RecordMessage("out", "render")
	m.RecordMessage("out", "update")
	m.RecordMessage("out", "update")
	m.RecordWebSocketError("read")

	if got := testutil.ToFloat64(m.wsConnections); got != 1 {
		t.Fatalf("websocket_connections=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.wsMessages.WithLabelValues("out", "update")); got != 2 {
		t.Fatalf("websocket_messages_total(out,update)=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.wsErrors.WithLabelValues("read")); got != 1 {
		t.Fatalf("websocket_errors_total(read)=%v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordConnect()
	m.RecordMessage("in", "eval")
	if rec := serve(newTestRouter(m.Handler), "/api/store/x"); rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
}

// recordingProvider hands out spans that remember what was set on them.
type recordingProvider struct {
	noop.TracerProvider
	mu    sync.Mutex
	spans []*recordedSpan
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{provider: p}
}

type recordingTracer struct {
	noop.Tracer
	provider *recordingProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordedSpan{name: name, kind: cfg.SpanKind(), attrs: map[attribute.Key]attribute.Value{}}
	for _, kv := range cfg.Attributes() {
		s.attrs[kv.Key] = kv.Value
	}
	t.provider.mu.Lock()
	t.provider.spans = append(t.provider.spans, s)
	t.provider.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordedSpan struct {
	noop.Span
	name   string
	kind   trace.SpanKind
	attrs  map[attribute.Key]attribute.Value
	status codes.Code
	ended  bool
}

func (s *recordedSpan) SetName(name string)              { s.name = name }
func (s *recordedSpan) End(...trace.SpanEndOption)       { s.ended = true }
func (s *recordedSpan) SetStatus(c codes.Code, _ string) { s.status = c }
func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func TestOpenTelemetryMiddleware(t *testing.T) {
	tp := &recordingProvider{}
	var inHandler trace.Span

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(OpenTelemetry(
		WithTracerProvider(tp),
		WithAttributeExtractor(func(*http.Request) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	))
	r.Get("/api/store/{id}", func(w http.ResponseWriter, r *http.Request) {
		inHandler = trace.SpanFromContext(r.Context())
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	serve(r, "/api/store/input1")
	serve(r, "/boom")

	if len(tp.spans) != 2 {
		t.Fatalf("spans=%d, want 2", len(tp.spans))
	}
	s := tp.spans[0]
	if inHandler != trace.Span(s) {
		t.Fatal("handler should see the request span in its context")
	}
	if s.name != "sunmao GET /api/store/{id}" {
		t.Errorf("name=%q", s.name)
	}
	if s.kind != trace.SpanKindServer {
		t.Errorf("kind=%v, want server", s.kind)
	}
	if !s.ended || s.status != codes.Ok {
		t.Errorf("ended=%v status=%v", s.ended, s.status)
	}
	if got := s.attrs["http.target"].AsString(); got != "/api/store/input1" {
		t.Errorf("http.target=%q", got)
	}
	if got := s.attrs["test.attr"].AsString(); got != "ok" {
		t.Errorf("test.attr=%q", got)
	}
	if s.attrs["sunmao.request_id"].AsString() == "" {
		t.Error("request id attribute missing")
	}
	if got := s.attrs["http.status_code"].AsInt64(); got != 200 {
		t.Errorf("status_code=%d", got)
	}

	if tp.spans[1].status != codes.Error {
		t.Errorf("5xx status=%v, want error", tp.spans[1].status)
	}
}

func TestOpenTelemetryFilter(t *testing.T) {
	tp := &recordingProvider{}
	r := newTestRouter(OpenTelemetry(
		WithTracerProvider(tp),
		WithFilter(func(r *http.Request) bool { return r.URL.Path != "/boom" }),
	))

	serve(r, "/boom")
	if len(tp.spans) != 0 {
		t.Fatalf("filtered request produced %d spans", len(tp.spans))
	}
	serve(r, "/api/store/a")
	if len(tp.spans) != 1 {
		t.Fatalf("spans=%d, want 1", len(tp.spans))
	}
}
