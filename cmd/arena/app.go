// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/arena"
	"github.com/kadirpekel/arena/pkg/config"
	"github.com/kadirpekel/arena/pkg/config/provider"
	"github.com/kadirpekel/arena/pkg/mockwhite"
	"github.com/kadirpekel/arena/pkg/observability"
	"github.com/kadirpekel/arena/pkg/recordstore"
	"github.com/kadirpekel/arena/pkg/relay"
	"github.com/kadirpekel/arena/pkg/session"
	"github.com/kadirpekel/arena/pkg/task"
)

// app holds the components shared by serve, run and mcp.
type app struct {
	cfg     *config.Config
	loader  *config.Loader
	obs     *observability.Manager
	records *recordstore.Store
	engine  *session.Engine
	closers []func()
}

// loadConfig reads the configuration from the selected provider. Without
// a config path the file provider falls back to defaults plus environment.
func loadConfig(ctx context.Context, cli *CLI, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	t, err := provider.ParseType(cli.ConfigType)
	if err != nil {
		return nil, nil, err
	}
	if t == provider.TypeFile && cli.Config == "" {
		cfg, err := config.FromEnv()
		return cfg, nil, err
	}
	return config.LoadFrom(ctx, provider.Config{
		Type:      t,
		Path:      cli.Config,
		Endpoints: cli.ConfigEndpoint,
	}, opts...)
}

// appOptions are command-line overrides applied on top of the config.
type appOptions struct {
	// whiteURL replaces responder.url.
	whiteURL string
	// local answers with the in-process mock responder.
	local bool
}

// newApp loads the configuration and wires the engine.
func newApp(ctx context.Context, cli *CLI, opts appOptions) (*app, error) {
	a := &app{}
	cfg, loader, err := loadConfig(ctx, cli, config.WithOnChange(func(c *config.Config) {
		a.reload(ctx, c)
	}))
	if err != nil {
		return nil, err
	}
	if opts.whiteURL != "" {
		cfg.Responder.URL = opts.whiteURL
	}
	a.cfg, a.loader = cfg, loader
	if loader != nil {
		a.closers = append(a.closers, func() { _ = loader.Close() })
	}

	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, &cfg.Logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, cleanup)

	if a.obs, err = observability.NewManager(ctx, cfg.Observability, arena.Version); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := a.obs.Shutdown(context.Background()); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	})

	if a.records, err = openRecords(ctx, cfg.RecordStore); err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.records.Close() })

	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var responder relay.Responder
	if opts.local {
		responder = mockwhite.New(mockwhite.WithSearcher(a.records))
	} else {
		responder = relay.NewHTTPResponder(cfg.Responder.URL,
			relay.WithTimeout(cfg.Responder.Timeout),
			relay.WithObservability(a.obs),
		)
	}
	a.engine = session.NewEngine(catalog, responder, cfg.SessionConfig(),
		session.WithObservability(a.obs),
		session.WithLogger(slog.Default()),
	)
	return a, nil
}

// reload applies a changed configuration to the running engine. Server
// address, record store and observability changes need a restart.
func (a *app) reload(ctx context.Context, cfg *config.Config) {
	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		slog.Error("Keeping previous task catalog", "error", err)
		catalog = nil
	}
	a.engine.Reload(catalog, cfg.SessionConfig())
	if cfg.Server != a.cfg.Server || cfg.RecordStore != a.cfg.RecordStore {
		slog.Warn("Server and record store changes take effect after a restart")
	}
	a.cfg = cfg
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openRecords(ctx context.Context, cfg recordstore.Config) (*recordstore.Store, error) {
	store, err := recordstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Seed(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to seed record store: %w", err)
	}
	if cfg.SeedFile != "" {
		if err := store.LoadFile(ctx, cfg.SeedFile); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

func loadCatalog(ctx context.Context, cfg *config.Config) (*task.Catalog, error) {
	var primary task.Source
	if cfg.Tasks.File != "" {
		primary = task.FileSource{Path: cfg.Tasks.File, Limit: cfg.Tasks.Limit}
	}
	catalog, err := task.LoadCatalog(ctx, primary, task.BuiltinSource{}, cfg.MatchMode())
	if err != nil {
		return nil, errors.Join(errors.New("no tasks available"), err)
	}
	return catalog, nil
}
