// Command marketclient is an interactive marketplace participant
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"market_client/internal/bootstrap"
	"market_client/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	bootstrap.Version = version
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		username   string
		noColor    bool
	)

	root := &cobra.Command{
		Use:          "marketclient",
		Short:        "Trade on a remote marketplace from an interactive shell",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if username != "" {
				cfg.App.Username = username
			}
			app, err := bootstrap.NewAppFromConfig(cfg)
			if err != nil {
				return err
			}
			return runClient(app, noColor)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration (default: in-process sandbox)")
	root.Flags().StringVarP(&username, "user", "u", "", "register as this participant on startup")
	root.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(versionCmd(), configCmd(&configPath))
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "marketclient %s (built %s)\n", version, buildTime)
		},
	}
}

func configCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and print it with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}
}

// loadConfig reads path, or falls back to the sandbox defaults when path is empty
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return bootstrap.LoadConfig(path)
	}
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := bootstrap.CheckPreFlight(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runClient(app *bootstrap.App, noColor bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := newPrinter(os.Stdout, noColor)
	c, err := wire(ctx, app, out)
	if err != nil {
		app.Logger.Error("Failed to start", "error", err)
		return err
	}

	sh := &shell{mgr: c.manager, journal: c.journal, out: out}
	if user := app.Cfg.App.Username; user != "" {
		if err := sh.exec(ctx, "register "+user); err != nil && !reported(err) {
			out.errorf("%v", err)
		}
	}

	historyFile := ""
	if dir, err := os.UserCacheDir(); err == nil {
		historyFile = filepath.Join(dir, "marketclient_history")
	}

	shellRunner := bootstrap.RunnerFunc(func(ctx context.Context) error {
		defer cancel()
		return sh.run(ctx, os.Stdin, historyFile)
	})

	runErr := app.RunContext(ctx, append(c.runners, shellRunner)...)
	return multierr.Append(runErr, c.close())
}
