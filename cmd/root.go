package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/proceedings-harvester/internal/app"
	"github.com/JakeFAU/proceedings-harvester/internal/config"
	"github.com/JakeFAU/proceedings-harvester/internal/runner"
)

const closeTimeout = 15 * time.Second

// Exit codes returned by Execute.
const (
	exitOK           = 0
	exitFailure      = 1
	exitDrainTimeout = 2
)

var errPartitionsFailed = errors.New("one or more partitions failed")

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the part of the service container the commands use, so tests can
// inject a fake.
type App interface {
	Run(ctx context.Context) (runner.Report, error)
	Close(ctx context.Context)
	GetLogger() *zap.Logger
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg, app.Options{})
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Downloads papers from yearly conference proceedings.",
		Long: `harvester walks the yearly index pages of a proceedings site, follows each
paper to its detail page and downloads the linked documents with a bounded
worker pool, then prints a per-file summary.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yaml, /etc/harvester/config.yaml or $HOME/.harvester/config.yaml)")
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// closeApp releases the services stored by PersistentPreRunE. Commands defer it
// because cobra skips post-run hooks when RunE fails.
func closeApp(ctx context.Context) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	appInstance.Close(closeCtx)
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI and exits with 0 on success, 2 when the drain timed out
// and 1 for any other failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, "harvester:", err)
	if errors.Is(err, runner.ErrDrainTimeout) {
		return exitDrainTimeout
	}
	return exitFailure
}
