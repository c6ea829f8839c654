// Copyright 2025 Tom Barlow
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

// Command flightdeckd runs the workflow control plane daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/flightdeck/internal/config"
	"github.com/tombee/flightdeck/internal/daemon"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath string
		listen     string
		engineURL  string
		dbPath     string
	)

	root := &cobra.Command{
		Use:           "flightdeckd",
		Short:         "Workflow control plane daemon",
		Long:          "flightdeckd registers workflows, triggers runs on a DAG scheduling engine, and tracks run state.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if engineURL != "" {
				cfg.Engine.URL = engineURL
			}
			if dbPath != "" {
				cfg.Storage.Path = dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := daemon.New(ctx, cfg, daemon.BuildInfo{Version: version, Commit: commit})
			if err != nil {
				return err
			}
			return d.Run(ctx)
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	root.Flags().StringVar(&listen, "listen", "", "listen address override")
	root.Flags().StringVar(&engineURL, "engine-url", "", "engine base URL override")
	root.Flags().StringVar(&dbPath, "db", "", "sqlite database path override")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "flightdeckd:", err)
		os.Exit(1)
	}
}
