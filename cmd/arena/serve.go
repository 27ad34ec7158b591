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

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/arena"
	"github.com/kadirpekel/arena/pkg/mockwhite"
	"github.com/kadirpekel/arena/pkg/server"
)

// ServeCmd starts the coordinator.
type ServeCmd struct {
	Port     int    `help:"Port to listen on (overrides config)."`
	WhiteURL string `name:"white-url" help:"Responder step endpoint (overrides config)."`
	Watch    bool   `help:"Reload tasks and session settings when the config changes."`
	Local    bool   `help:"Answer with the built-in mock responder instead of calling out."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cli, appOptions{whiteURL: c.WhiteURL, local: c.Local})
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg.Server
	if c.Port != 0 {
		cfg.Port = c.Port
		cfg.PublicURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}

	srv := server.New(cfg, a.engine,
		server.WithRecordStore(a.records),
		server.WithObservability(a.obs),
		server.WithVersion(arena.Version),
	)

	fmt.Printf("\narena coordinator ready\n")
	fmt.Printf("   Start:       POST %s/a2a/start?persona=ServiceAgent&difficulty=easy\n", cfg.PublicURL)
	fmt.Printf("   Agent Card:  %s/.well-known/agent-card.json\n", cfg.PublicURL)
	fmt.Printf("   Health:      %s/health\n", cfg.PublicURL)
	if a.obs.MetricsEnabled() {
		fmt.Printf("   Metrics:     %s%s\n", cfg.PublicURL, a.obs.MetricsPath())
	}
	if c.Local {
		fmt.Printf("   Responder:   built-in mock\n\n")
	} else {
		fmt.Printf("   Responder:   %s\n\n", a.cfg.Responder.URL)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Watch && a.loader != nil {
		g.Go(func() error {
			err := a.loader.Watch(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Config watch stopped", "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Coordinator stopped")
	return nil
}

// WhiteCmd starts the mock responder.
type WhiteCmd struct {
	Port     int    `help:"Port to listen on." default:"9100"`
	Host     string `help:"Host to bind." default:"0.0.0.0"`
	GreenURL string `name:"green-url" env:"GREEN_URL" help:"Coordinator base URL used to execute lookups (optional)."`
}

func (c *WhiteCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	var opts []mockwhite.Option
	if c.GreenURL != "" {
		opts = append(opts, mockwhite.WithGreenURL(c.GreenURL))
	}
	agent := mockwhite.New(opts...)

	fmt.Printf("\nmock responder ready\n")
	fmt.Printf("   Step:  POST http://localhost:%d%s\n\n", c.Port, mockwhite.StepPath)

	return agent.Serve(ctx, fmt.Sprintf("%s:%d", c.Host, c.Port))
}
