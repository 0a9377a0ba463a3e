package cli

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/trappiz/tesla-order-status/internal/api"
	"github.com/trappiz/tesla-order-status/internal/auth"
	"github.com/trappiz/tesla-order-status/internal/engine"
	"github.com/trappiz/tesla-order-status/internal/store"
)

// DatabaseFileName is the SQLite file inside the data directory.
const DatabaseFileName = "orders.db"

// app bundles the wired components behind one command invocation.
type app struct {
	cfg      Config
	store    *store.Store
	engine   *engine.Engine
	renderer *Renderer
}

// newApp opens the data directory, loads config, and wires store, API
// client, token manager, and engine.
func newApp(opts *RootOptions) (*app, error) {
	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, WrapExitError(ExitCommandError, "create data directory", err)
	}

	cfg, err := LoadConfig(opts.DataDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	st, err := store.Open(filepath.Join(opts.DataDir, DatabaseFileName))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	client := api.NewClient(api.Config{
		OrdersURL:      cfg.OrdersURL,
		TasksURL:       cfg.TasksURL,
		DeviceLanguage: cfg.Locale,
		Timeout:        cfg.Timeout,
	})

	authOpts := []auth.Option{
		auth.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.TokenURL != "" {
		authOpts = append(authOpts, auth.WithTokenURL(cfg.TokenURL))
	}
	tokens := auth.New(st, authOpts...)

	eng := engine.New(st, client, tokens, engine.Config{
		TTL:             cfg.TTL,
		IgnoredPrefixes: cfg.IgnoredPrefixes,
	})

	return &app{
		cfg:      cfg,
		store:    st,
		engine:   eng,
		renderer: NewRenderer(cfg.Locale),
	}, nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}
