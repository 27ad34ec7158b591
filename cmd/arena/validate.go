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

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/arena/pkg/config"
	"github.com/kadirpekel/arena/pkg/policy"
	"github.com/kadirpekel/arena/pkg/protocol"
)

// ValidateCmd validates a configuration file and, optionally, a protocol
// message against the configured policy.
type ValidateCmd struct {
	Config      string `arg:"" optional:"" name:"config" help:"Configuration file path." placeholder:"PATH"`
	Message     string `short:"m" help:"Protocol message (JSON file) to parse and check against the policy." type:"existingfile"`
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

// validationResult is the JSON output of validate.
type validationResult struct {
	Valid      bool                         `json:"valid"`
	File       string                       `json:"file"`
	Errors     []string                     `json:"errors,omitempty"`
	Validation *protocol.FeedbackValidation `json:"validation,omitempty"`
}

func (c *ValidateCmd) Run() error {
	return c.run(context.Background(), os.Stdout)
}

func (c *ValidateCmd) run(ctx context.Context, w io.Writer) error {
	name := c.Config
	var cfg *config.Config
	var err error
	if c.Config == "" {
		name = "(defaults)"
		cfg, err = config.FromEnv()
	} else {
		var loader *config.Loader
		cfg, loader, err = config.LoadFile(ctx, c.Config)
		if loader != nil {
			defer loader.Close()
		}
	}
	if err != nil {
		return c.report(w, validationResult{File: name, Errors: []string{err.Error()}})
	}

	if c.PrintConfig {
		return printExpandedConfig(w, c.Format, cfg)
	}
	if c.Message == "" {
		return c.report(w, validationResult{Valid: true, File: name})
	}

	data, err := os.ReadFile(c.Message)
	if err != nil {
		return err
	}
	msg, err := protocol.Parse(data)
	if err != nil {
		return c.report(w, validationResult{File: c.Message, Errors: []string{err.Error()}})
	}

	var v protocol.FeedbackValidation
	switch m := msg.(type) {
	case *protocol.ActionProposal:
		v = policy.ValidateActionProposal(m, cfg.Policy.ProposalPolicy())
	case *protocol.Decision:
		v = policy.ValidateDecision(m)
	default:
		v = protocol.FeedbackValidation{ActionValid: true, PolicyViolations: []string{}, Notes: "no policy applies to " + string(msg.Envelope().Type)}
	}
	return c.report(w, validationResult{Valid: v.ActionValid, File: c.Message, Errors: v.PolicyViolations, Validation: &v})
}

func (c *ValidateCmd) report(w io.Writer, r validationResult) error {
	switch c.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return err
		}
	case "verbose":
		fmt.Fprintf(w, "File:    %s\n", r.File)
		if r.Valid {
			fmt.Fprintf(w, "Status:  OK\n")
		} else {
			fmt.Fprintf(w, "Status:  INVALID\n")
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
		if r.Validation != nil && r.Validation.Notes != "" {
			fmt.Fprintf(w, "Notes:   %s\n", r.Validation.Notes)
		}
	default:
		if r.Valid {
			fmt.Fprintf(w, "%s: valid\n", r.File)
		} else {
			for _, e := range r.Errors {
				fmt.Fprintf(w, "%s: %s\n", r.File, e)
			}
		}
	}
	if !r.Valid {
		return fmt.Errorf("%s: validation failed", r.File)
	}
	return nil
}

func printExpandedConfig(w io.Writer, format string, cfg *config.Config) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	fmt.Fprintf(w, "# defaults applied, env vars resolved\n")
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config as YAML: %w", err)
	}
	return enc.Close()
}
