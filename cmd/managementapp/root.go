/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomoncle/managementapp/bootstrap"
	"github.com/tomoncle/managementapp/config"
	"github.com/tomoncle/managementapp/utils"
)

type rootFlags struct {
	configDir   string
	environment string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "managementapp",
		Short: "Management application host",
		Long: `managementapp loads appsettings.json layered with the file for the
selected environment, registers the database client bound to the
ManagementApp schema, checks connectivity once and runs until stopped.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", utils.EnvDefaultString("APP_CONFIG_DIR", "."), "directory holding appsettings.json")
	root.PersistentFlags().StringVar(&flags.environment, "environment", "", "environment name (defaults to $"+config.EnvironmentVariable+", then "+config.DefaultEnvironment+")")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides Logging:Level")

	root.AddCommand(
		newRunCmd(flags),
		newCheckCmd(flags),
		newMigrateCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

// Execute is the entry point called by main.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func (f *rootFlags) options(cmd *cobra.Command) bootstrap.Options {
	return bootstrap.Options{
		ConfigDir:   f.configDir,
		Environment: f.environment,
		Stdout:      cmd.OutOrStdout(),
	}
}

// configure builds the app and lets --log-level win over the config file.
func (f *rootFlags) configure(cmd *cobra.Command) (*bootstrap.App, error) {
	app, err := bootstrap.Configure(f.options(cmd))
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		utils.ConfigureLogLevel(f.logLevel)
	}
	return app, nil
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full startup sequence and block until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, flags)
		},
	}
}

func runHost(cmd *cobra.Command, flags *rootFlags) error {
	app, err := flags.configure(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app.Probe(ctx)
	return app.Run(ctx)
}

func newCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the database once and exit non-zero unless it is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.configure(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Factory().Close() }()

			result := app.Probe(cmd.Context())
			if result.Readiness != bootstrap.ReadinessConnected {
				return fmt.Errorf("database is %s", result.Readiness)
			}
			return nil
		},
	}
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations and print their ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.configure(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = app.Factory().Close() }()

			applied, err := app.Factory().Migrator().Apply(cmd.Context())
			for _, id := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
			}
			return nil
		},
	}
}

func newConfigCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{Dir: flags.configDir, Environment: flags.environment})
			if err != nil {
				return err
			}
			return cfg.WriteYAML(cmd.OutOrStdout())
		},
	}
}
