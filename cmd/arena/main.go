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

// Command arena runs the A2A evaluation harness.
//
// Usage:
//
//	arena serve --config configs/arena.yaml
//	arena white --port 9100
//	arena run --local --persona ServiceAgent --difficulty easy
//	arena schema --type decision
//	arena validate configs/arena.yaml
//	arena mcp --local
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/arena"
	"github.com/kadirpekel/arena/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the green coordinator server."`
	White    WhiteCmd    `cmd:"" help:"Start the mock white responder."`
	Run      RunCmd      `cmd:"" help:"Drive one session to completion and print every reaction."`
	Schema   SchemaCmd   `cmd:"" help:"Print JSON Schemas for protocol messages or the configuration."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file or a protocol message."`
	MCP      MCPCmd      `cmd:"" name:"mcp" help:"Serve session tools over MCP stdio."`

	Config         string   `short:"c" help:"Path to config file (or key for remote providers)."`
	ConfigType     string   `name:"config-type" help:"Config provider: file, consul, etcd, zookeeper." default:"file" enum:"file,consul,etcd,zookeeper,zk"`
	ConfigEndpoint []string `name:"config-endpoint" help:"Config provider endpoints (repeatable)." sep:","`
	LogLevel       string   `help:"Log level (debug, info, warn, error)."`
	LogFile        string   `help:"Log file path (empty = stderr)."`
	LogFormat      string   `help:"Log format (simple, verbose, json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(arena.GetVersion().String())
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	_ = config.LoadEnvFiles()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("arena"),
		kong.Description("A2A evaluation harness: pose a task, relay messages, score the answer."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	cleanup, err := initLogger(cli.LogLevel, cli.LogFile, cli.LogFormat, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = kctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cleanup()
		os.Exit(1)
	}
}
