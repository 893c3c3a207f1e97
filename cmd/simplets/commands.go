package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// Root Command
// =============================================================================

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "simplets",
		Short:         "Deploy simplet container stacks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newDeployCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the config and tags failures with the config exit code.
func loadConfig(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, &ServerError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
	}
	return cfg, nil
}

// =============================================================================
// Commands
// =============================================================================

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			logger := SetupLogger(cfg)
			logger.Info("starting simplets",
				"version", Version,
				"config", *configPath,
			)

			server, err := NewServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return server.Start(cmd.Context())
		},
	}
}

func newDeployCmd(configPath *string) *cobra.Command {
	var overridePath string

	cmd := &cobra.Command{
		Use:   "deploy <service>",
		Short: "Deploy one simplet and print its status line",
		Long: `Deploy one simplet and print its status line.

The override file holds a JSON object of configuration fields. Use "-" to
read it from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			override, err := readOverride(cmd.InOrStdin(), overridePath)
			if err != nil {
				return &ServerError{Op: "ReadOverride", Err: err, ExitCode: ExitConfigError}
			}

			logger := SetupLogger(cfg)
			rt, err := newRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			message, ok := rt.runner.Execute(cmd.Context(), args[0], override)
			fmt.Fprintln(cmd.OutOrStdout(), message)
			if !ok {
				return &ServerError{Op: "Deploy", Err: errors.New("deployment did not complete"), ExitCode: ExitDeployFailed}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&overridePath, "override", "", "path to a JSON override file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "simplets %s (built %s)\n", Version, BuildTime)
		},
	}
}

// readOverride returns the override bytes named by path. No path means no
// overrides.
func readOverride(stdin io.Reader, path string) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(path)
	}
}
