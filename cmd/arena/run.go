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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/arena/pkg/session"
)

// RunCmd drives a single session until it ends.
type RunCmd struct {
	Persona    string `help:"Task persona." default:"ServiceAgent"`
	Difficulty string `help:"Task difficulty." default:"easy"`
	WhiteURL   string `name:"white-url" help:"Responder step endpoint (overrides config)."`
	Local      bool   `help:"Use the built-in mock responder."`
	Transcript bool   `help:"Print the full session transcript at the end."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cli, appOptions{whiteURL: c.WhiteURL, local: c.Local})
	if err != nil {
		return err
	}
	defer a.Close()

	return runEpisode(ctx, a.engine, os.Stdout, c.Persona, c.Difficulty, c.Transcript)
}

// episodeRunner is the part of the engine an episode needs.
type episodeRunner interface {
	Start(ctx context.Context, persona, difficulty string) (*session.Reaction, error)
	Continue(ctx context.Context, sessionID string) (*session.Reaction, error)
	Get(ctx context.Context, sessionID string) (session.Snapshot, error)
}

func runEpisode(ctx context.Context, e episodeRunner, w io.Writer, persona, difficulty string, transcript bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	r, err := e.Start(ctx, persona, difficulty)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := enc.Encode(r); err != nil {
		return err
	}

	for !r.Done {
		if r, err = e.Continue(ctx, r.SessionID); err != nil {
			return fmt.Errorf("continue: %w", err)
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}

	if transcript {
		snap, err := e.Get(ctx, r.SessionID)
		if err != nil {
			return err
		}
		return enc.Encode(snap)
	}
	return nil
}
