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
	"github.com/kadirpekel/arena"
	"github.com/kadirpekel/arena/pkg/mcpserver"
)

// MCPCmd serves the session tools over stdio.
type MCPCmd struct {
	WhiteURL string `name:"white-url" help:"Responder step endpoint (overrides config)."`
	Local    bool   `help:"Use the built-in mock responder."`
}

func (c *MCPCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cli, appOptions{whiteURL: c.WhiteURL, local: c.Local})
	if err != nil {
		return err
	}
	defer a.Close()

	return mcpserver.ServeStdio(a.engine, mcpserver.WithVersion(arena.Version))
}
