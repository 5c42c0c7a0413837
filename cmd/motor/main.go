package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"motorcortex/internal/bindings"
	"motorcortex/internal/config"
	"motorcortex/internal/controller"
	"motorcortex/internal/engine"
	"motorcortex/internal/history"
	"motorcortex/internal/interpret"
	"motorcortex/internal/logging"
	"motorcortex/internal/osexec"
	"motorcortex/internal/repl"
	"motorcortex/internal/route"
	"motorcortex/internal/web"
)

var (
	// Global flags
	configPath string
	dataDir    string
	clientOS   string
	verbose    bool
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "motor",
	Short: "motor - local dispatch for gesture and voice commands",
	Long: `motor turns natural-language commands into validated OS and browser
actions. Events arrive from gesture and voice recognizers (or from this
CLI) and pass through a shortcut table, a local LLM interpreter, a step
validator, and a confirmation gate before anything executes.

Run without arguments to start the interactive prompt.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The interactive prompt owns the terminal; keep zap off it.
		if cmd.Use == "motor" && cmd.CalledAs() == "motor" {
			return nil
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	// Assigned here instead of in the composite literal to avoid an
	// initialization cycle (RunE -> buildApp -> loadConfig -> rootCmd).
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch the interactive prompt
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return repl.Run(a.cfg, a.engine, a.prober)
	}

	rootCmd.Version = config.DefaultConfig().Version

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&clientOS, "os", "", "Client OS to drive: darwin, windows, linux (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 12*time.Second, "Per-command wall clock budget (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(denyCmd)
	rootCmd.AddCommand(bindingsCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wired command pipeline for one invocation.
type app struct {
	cfg      *config.Config
	engine   *engine.Engine
	webExec  *web.Executor
	bindings *bindings.Store
	prober   *controller.Prober
	history  *history.Store
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := logging.Initialize(cfg.LogDir(), logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	interpreter := interpret.New(cfg)
	webExec := web.New(cfg)
	osBackend := osexec.NewDispatcher(cfg)
	router := route.New(osBackend, webExec)
	eng := engine.New(cfg, interpreter, router, osBackend.SupportedIntents())

	a := &app{
		cfg:     cfg,
		engine:  eng,
		webExec: webExec,
		prober:  controller.NewProber(cfg),
	}

	binds := bindings.NewStore(cfg.BindingsPath(), cfg.HotkeysPath())
	if err := binds.Load(); err != nil {
		logging.BindingsWarn("load bindings: %v", err)
	}
	a.bindings = binds

	if cfg.History.Enabled {
		hist, err := history.New(cfg.HistoryPath())
		if err != nil {
			logging.HistoryError("open history store: %v", err)
		} else {
			a.history = hist
			eng.SetRecorder(hist)
		}
	}

	return a, nil
}

func (a *app) Close() {
	if a.webExec != nil {
		a.webExec.Close()
	}
	if a.history != nil {
		_ = a.history.Close()
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if clientOS != "" {
		cfg.ClientOS = clientOS
	}
	if rootCmd.PersistentFlags().Changed("timeout") {
		cfg.Controller.CommandTimeout = timeout.String()
	}
	return cfg, nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
