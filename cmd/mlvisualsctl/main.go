package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mlvisuals/internal/classifier"
	"mlvisuals/internal/config"
	"mlvisuals/internal/scheduler"
	"mlvisuals/internal/telemetry"
	"mlvisuals/pkg/mlvisuals"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every command needs once flags and config are resolved.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath   string
	storeKind    string
	dbPath       string
	artifactsDir string
	trace        bool

	cfg           config.Config
	logger        *slog.Logger
	shutdownTrace func(context.Context) error
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.shutdownTrace != nil {
		if serr := a.shutdownTrace(context.Background()); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mlvisualsctl",
		Short:         "Run and inspect linear classification learning experiments",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML or JSON config file")
	flags.StringVar(&a.storeKind, "store", "", "store backend: memory|sqlite")
	flags.StringVar(&a.dbPath, "db-path", "", "sqlite database path")
	flags.StringVar(&a.artifactsDir, "artifacts-dir", "", "directory for run artifacts and the run index")
	flags.BoolVar(&a.trace, "trace", false, "print trace spans to stderr")

	root.AddCommand(
		a.learningCurveCmd(),
		a.biasVarianceCmd(),
		a.nonlinearCmd(),
		a.runsCmd(),
		a.showCmd(),
		a.exportCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("store") {
		cfg.Storage.Kind = a.storeKind
	}
	if cmd.Flags().Changed("db-path") {
		cfg.Storage.DBPath = a.dbPath
	}
	if cmd.Flags().Changed("artifacts-dir") {
		cfg.Storage.ArtifactsDir = a.artifactsDir
	}
	if a.trace {
		cfg.Observability.TraceExporter = "stdout"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg
	a.logger = config.NewLogger(cfg.Observability, a.stderr)

	shutdown, err := telemetry.Init(cmd.Context(), telemetry.Config{
		ServiceName: "mlvisualsctl",
		Version:     version,
		Exporter:    cfg.Observability.TraceExporter,
		Writer:      a.stderr,
	})
	if err != nil {
		return err
	}
	a.shutdownTrace = shutdown
	return nil
}

func (a *app) newClient() (*mlvisuals.Client, error) {
	return mlvisuals.New(mlvisuals.Options{
		StoreKind:    a.cfg.Storage.Kind,
		DBPath:       a.cfg.Storage.DBPath,
		ArtifactsDir: a.cfg.Storage.ArtifactsDir,
		TickRate:     a.cfg.Scheduler.TickRate,
		Memory: classifier.Options{
			InitialPages: a.cfg.Memory.InitialPages,
			MaxPages:     a.cfg.Memory.MaxPages,
			MaxInstances: a.cfg.Memory.MaxInstances,
		},
		Bounds: scheduler.Bounds{
			MinN:    a.cfg.Limits.MinN,
			MaxN:    a.cfg.Limits.MaxN,
			MinRuns: a.cfg.Limits.MinRuns,
			MaxRuns: a.cfg.Limits.MaxRuns,
		},
		Logger: a.logger,
	})
}

// withClient opens a client for the duration of fn.
func (a *app) withClient(fn func(*mlvisuals.Client) error) error {
	client, err := a.newClient()
	if err != nil {
		return err
	}
	err = fn(client)
	if cerr := client.Close(); cerr != nil {
		a.logger.Warn("close client", "error", cerr)
	}
	return err
}
