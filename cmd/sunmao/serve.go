package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/sunmao-dev/sunmao/internal/config"
	"github.com/sunmao-dev/sunmao/internal/watch"
	"github.com/sunmao-dev/sunmao/pkg/runtime"
	"github.com/sunmao-dev/sunmao/pkg/schema"
	"github.com/sunmao-dev/sunmao/pkg/server"
	"github.com/sunmao-dev/sunmao/pkg/snapshot"
	"github.com/sunmao-dev/sunmao/pkg/state"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var (
		port      int
		host      string
		watchFile bool
	)

	cmd := &cobra.Command{
		Use:   "serve [app]",
		Short: "Serve an application",
		Long: `Serve an application over HTTP and WebSocket.

The state store is saved periodically and on shutdown, to the bbolt
file named by snapshot.path in the config, and restored on start.

With --watch, edits to a local application file are reloaded into the
running server without losing state.

Examples:
  sunmao serve
  sunmao serve app.yaml --port=8080
  sunmao serve app.yaml --watch
  sunmao serve s3://apps/hello.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}
			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			return runServe(cmd.Context(), cfg, appSource(cfg, arg), watchFile)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().BoolVarP(&watchFile, "watch", "w", false, "Reload the application when its file changes")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, source string, watchFile bool) error {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	interval, err := cfg.SnapshotInterval()
	if err != nil {
		return err
	}
	shutdownTimeout, err := cfg.ShutdownTimeout()
	if err != nil {
		return err
	}

	loader := newLoader(cfg)
	app, err := loader.Load(ctx, source)
	if err != nil {
		return err
	}

	var (
		srvOpts = []server.Option{server.WithLogger(logger)}
		mgrOpts []state.Option
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mgrOpts = append(mgrOpts, state.WithMetrics(state.NewMetrics(
			state.WithMetricsRegistry(reg),
			state.WithMetricsNamespace(cfg.Metrics.Namespace),
		)))
		srvOpts = append(srvOpts, server.WithRegistry(reg))
	}
	if cfg.Tracing.Enabled {
		srvOpts = append(srvOpts, server.WithTracerProvider(otel.GetTracerProvider()))
	}

	var snapshots snapshot.Store
	if path := cfg.SnapshotPath(); path != "" {
		bolt, err := snapshot.OpenBolt(path)
		if err != nil {
			return err
		}
		snapshots = bolt
	} else {
		snapshots = snapshot.NewMemoryStore()
	}
	defer snapshots.Close()
	srvOpts = append(srvOpts, server.WithSnapshots(snapshots))

	rt := runtime.New(app, newManager(cfg, logger, nil, mgrOpts...), logger)
	srv := server.New(rt, &server.Config{
		Address:          cfg.Address(),
		AppName:          cfg.AppName(),
		ShutdownTimeout:  shutdownTimeout,
		SnapshotInterval: interval,
		MetricsPath:      cfg.Metrics.Path,
	}, srvOpts...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchFile {
		if schema.IsRemote(source) {
			warn("--watch ignored for remote application %s", source)
		} else {
			w, err := watchApp(ctx, source, loader, srv)
			if err != nil {
				return err
			}
			defer w.Stop()
		}
	}

	printBanner()
	success("Serving %s (%d components) at %s", app.Metadata.Name, len(app.Spec.Components), cfg.URL())
	if path := cfg.SnapshotPath(); path != "" {
		size := "empty"
		if fi, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		info("Snapshots in %s (%s)", path, size)
	}
	if interval > 0 {
		info("State saved every %s", interval)
	}
	if cfg.Metrics.Enabled {
		info("Metrics at %s%s", cfg.URL(), cfg.Metrics.Path)
	}

	return srv.Run(ctx)
}

// watchApp reloads the application into srv whenever source changes.
func watchApp(ctx context.Context, source string, loader *schema.Loader, srv *server.Server) (*watch.Watcher, error) {
	w, err := watch.New(watch.Config{Files: []string{source}, Logger: srv.Logger()})
	if err != nil {
		return nil, err
	}
	w.OnChange(func(c watch.Change) {
		if c.Op == watch.OpRemove {
			warn("%s was removed; keeping the last version", c.Path)
			return
		}
		app, err := loader.Load(ctx, source)
		if err != nil {
			srv.Logger().Error("reload failed", "app", source, "error", err)
			return
		}
		if err := srv.Reload(ctx, app); err != nil {
			srv.Logger().Error("reload failed", "app", source, "error", err)
			return
		}
		success("Reloaded %s", c.Path)
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
