package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sunmao-dev/sunmao/internal/config"
	serrors "github.com/sunmao-dev/sunmao/internal/errors"
	"github.com/sunmao-dev/sunmao/internal/logging"
	"github.com/sunmao-dev/sunmao/pkg/schema"
	"github.com/sunmao-dev/sunmao/pkg/state"
)

// loadConfig reads the config named by --config, or the one found in the
// working directory or its parents, or the defaults when there is none.
func loadConfig(g *globalFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case g.configPath != "":
		cfg, err = config.LoadFile(g.configPath)
	default:
		cfg, err = config.LoadFromWorkingDir()
		if errors.Is(err, serrors.New("E100")) {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format, w)
}

// dependencies returns the constant dependencies declared in the config.
// The manager merges them over the default helpers.
func dependencies(cfg *config.Config) map[string]any {
	extra := make(map[string]any, len(cfg.Dependencies))
	for k, v := range cfg.Dependencies {
		extra[k] = schema.Normalize(v)
	}
	return extra
}

func newLoader(cfg *config.Config) *schema.Loader {
	return schema.NewLoader(schema.WithS3(schema.NewS3Client(schema.S3Config{
		Region:       cfg.S3.Region,
		Endpoint:     cfg.S3.Endpoint,
		UsePathStyle: cfg.S3.UsePathStyle,
	})))
}

// appSource picks the application named on the command line, resolved
// against the working directory, over the one in the config.
func appSource(cfg *config.Config, arg string) string {
	if arg == "" {
		return cfg.AppSource()
	}
	if !schema.IsRemote(arg) {
		if abs, err := filepath.Abs(arg); err == nil {
			arg = abs
		}
	}
	cfg.App = arg
	return arg
}

// readStore reads initial store contents from a JSON or YAML file.
func readStore(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.New("E400").WithDetail("--store " + path).Wrap(err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, serrors.New("E400").WithDetail("--store " + path).Wrap(err)
	}
	out, _ := schema.Normalize(raw).(map[string]any)
	return out, nil
}

// parseJSONFlag parses a flag holding a JSON (or YAML) object.
func parseJSONFlag(name, value string) (map[string]any, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(value), &raw); err != nil {
		return nil, serrors.New("E400").WithDetail(fmt.Sprintf("--%s %s", name, value)).Wrap(err)
	}
	out, _ := schema.Normalize(raw).(map[string]any)
	return out, nil
}

// newManager builds a state manager with the configured dependencies and
// the initial store.
func newManager(cfg *config.Config, logger *slog.Logger, store map[string]any, opts ...state.Option) *state.Manager {
	opts = append([]state.Option{state.WithLogger(logger)}, opts...)
	mgr := state.New(dependencies(cfg), opts...)
	if len(store) > 0 {
		mgr.Store().Load(store)
	}
	return mgr
}
