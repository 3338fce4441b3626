package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
	"github.com/sunmao-dev/sunmao/pkg/expression"
	"github.com/sunmao-dev/sunmao/pkg/middleware"
	"github.com/sunmao-dev/sunmao/pkg/runtime"
	"github.com/sunmao-dev/sunmao/pkg/schema"
	"github.com/sunmao-dev/sunmao/pkg/snapshot"
)

// Server serves one application runtime.
type Server struct {
	config    *Config
	rt        *runtime.Runtime
	snapshots snapshot.Store
	logger    *slog.Logger

	registry       *prometheus.Registry
	metrics        *middleware.Metrics
	tracerProvider trace.TracerProvider

	router   chi.Router
	upgrader websocket.Upgrader
	hub      *hub

	// mu serializes writes to the runtime so that a merge from one client
	// is never interleaved with a write from another.
	mu sync.Mutex

	unsubscribe func()
	started     atomic.Bool
	closed      atomic.Bool

	httpMu     sync.Mutex
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSnapshots persists the state store to store.
func WithSnapshots(store snapshot.Store) Option {
	return func(s *Server) {
		s.snapshots = store
	}
}

// WithRegistry enables HTTP and WebSocket metrics, registered on registry
// and served at Config.MetricsPath.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithTracerProvider enables request tracing.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = tp
	}
}

// New creates a server for rt. Call Start before serving requests.
func New(rt *runtime.Runtime, config *Config, opts ...Option) *Server {
	s := &Server{
		config: config.withDefaults(),
		rt:     rt,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")

	if s.registry != nil {
		s.metrics = middleware.NewMetrics(middleware.WithRegistry(s.registry))
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  s.config.ReadBufferSize,
		WriteBufferSize: s.config.WriteBufferSize,
		CheckOrigin:     s.config.CheckOrigin,
	}
	s.hub = newHub(s.config, s.metrics, s.logger)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if s.tracerProvider != nil {
		r.Use(middleware.OpenTelemetry(middleware.WithTracerProvider(s.tracerProvider)))
	}
	if s.metrics != nil {
		r.Use(s.metrics.Handler)
		r.Method(http.MethodGet, s.config.MetricsPath,
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/app", s.handleApp)
		r.Get("/store", s.handleStore)
		r.Put("/store/{id}", s.handleSetState)
		r.Patch("/store/{id}", s.handleMergeState)
		r.Post("/eval", s.handleEval)
		r.Put("/slots/{key}", s.handleSetSlot)
		r.Delete("/slots/{key}", s.handleClearSlot)
	})
	r.Get("/ws", s.handleWebSocket)
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Runtime returns the served runtime.
func (s *Server) Runtime() *runtime.Runtime {
	return s.rt
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Connections returns the number of open WebSocket connections.
func (s *Server) Connections() int {
	return s.hub.len()
}

// Start restores the last snapshot, starts the runtime and begins
// forwarding updates to WebSocket clients.
func (s *Server) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.RestoreSnapshot(ctx); err != nil {
		s.logger.Warn("snapshot restore failed", "error", err)
	}
	if err := s.rt.Start(ctx); err != nil {
		s.started.Store(false)
		return err
	}
	s.unsubscribe = s.rt.Subscribe(func(u runtime.Update) {
		u.Value = expression.JSONValue(u.Value)
		u.Properties = expression.JSONValue(u.Properties)
		s.hub.broadcast(serverMessage{Type: msgUpdate, Update: &u})
	})
	return nil
}

// Run starts the server and serves HTTP until ctx is canceled, saving
// snapshots on the configured interval. It shuts down gracefully before
// returning.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return serrors.New("E303").WithDetail(s.config.Address).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	s.httpMu.Lock()
	s.httpServer = httpServer
	s.httpMu.Unlock()

	// The serve goroutine always returns an error so that the group
	// context ends the snapshot loop however serving stopped.
	var shutdownErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting", "address", ln.Addr().String())
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return errServeStopped
	})
	g.Go(func() error {
		s.snapshotLoop(gctx)
		s.logger.Info("shutting down...")
		shutdownErr = s.Shutdown(context.Background())
		return nil
	})
	err = g.Wait()
	if errors.Is(err, errServeStopped) {
		err = nil
	}
	return errors.Join(err, shutdownErr)
}

// snapshotLoop saves the store on the configured interval until ctx is
// done.
func (s *Server) snapshotLoop(ctx context.Context) {
	if s.config.SnapshotInterval <= 0 || s.snapshots == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.config.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.SaveSnapshot(ctx); err != nil {
				s.logger.Error("snapshot failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes every WebSocket connection, stops the HTTP server, saves
// a final snapshot and stops the runtime.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.hub.close()

	var errs []error
	s.httpMu.Lock()
	httpServer := s.httpServer
	s.httpMu.Unlock()
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}

	if s.started.Load() {
		if err := s.SaveSnapshot(ctx); err != nil {
			s.logger.Error("final snapshot failed", "error", err)
			errs = append(errs, err)
		}
		s.rt.Stop()
	}

	s.logger.Info("server shutdown complete")
	return errors.Join(errs...)
}

// SaveSnapshot writes the state store to the snapshot store. It does
// nothing when no snapshot store is configured.
func (s *Server) SaveSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	values, _ := expression.JSONValue(s.rt.Manager().Store().Snapshot()).(map[string]any)
	data, err := snapshot.Encode(s.config.AppName, values, time.Now())
	if err != nil {
		return serrors.New("E302").Wrap(err)
	}
	if err := s.snapshots.Save(ctx, s.config.AppName, data); err != nil {
		return serrors.New("E302").Wrap(err)
	}
	s.logger.Debug("snapshot saved", "app", s.config.AppName, "keys", len(values))
	return nil
}

// RestoreSnapshot loads the last saved state store, if any.
func (s *Server) RestoreSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	data, err := s.snapshots.Load(ctx, s.config.AppName)
	if err != nil {
		return serrors.New("E302").Wrap(err)
	}
	if data == nil {
		return nil
	}
	snap, err := snapshot.Decode(data)
	if err != nil {
		return serrors.New("E302").Wrap(err)
	}

	s.mu.Lock()
	s.rt.Manager().Store().Load(snap.State)
	s.mu.Unlock()
	s.logger.Info("snapshot restored", "app", s.config.AppName, "saved_at", snap.SavedAt, "keys", len(snap.State))
	return nil
}

// Reload replaces the application and sends the new render to every
// client. The state store is kept.
func (s *Server) Reload(ctx context.Context, app *schema.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rt.Reload(ctx, app); err != nil {
		return err
	}
	s.hub.broadcast(s.renderMessage())
	s.logger.Info("application reloaded", "components", len(app.Spec.Components))
	return nil
}

func (s *Server) renderMessage() serverMessage {
	components := s.rt.Render()
	for i := range components {
		components[i].Properties = expression.JSONValue(components[i].Properties)
		for j := range components[i].Traits {
			components[i].Traits[j].Properties = expression.JSONValue(components[i].Traits[j].Properties)
		}
	}
	return serverMessage{Type: msgRender, Components: components}
}
