package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sumit-dhanorkar/sitewizard/internal/api"
	"github.com/sumit-dhanorkar/sitewizard/internal/config"
	"github.com/sumit-dhanorkar/sitewizard/internal/jobs"
	"github.com/sumit-dhanorkar/sitewizard/internal/store"
)

const version = "0.3.0"

// app bundles the shared dependencies behind every subcommand.
type app struct {
	cfg    *config.Config
	mgr    *config.Manager
	log    *zap.Logger
	level  zap.AtomicLevel
	store  *store.Store
	client *api.Client
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	log, level, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DurableDir(), cfg.SessionDir(), log)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &app{
		cfg:    cfg,
		log:    log,
		level:  level,
		store:  st,
		client: api.NewClient(cfg, log),
	}, nil
}

// newLogger keeps the terminal quiet unless debug is on. Warnings and
// errors still surface so failed turns are not silently swallowed. The
// atomic level lets a config edit change verbosity mid-session.
func newLogger(debug bool) (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	ec := zap.NewProductionConfig()
	if debug {
		ec = zap.NewDevelopmentConfig()
		level.SetLevel(zapcore.DebugLevel)
	}
	ec.Level = level
	log, err := ec.Build()
	return log, level, err
}

// applyConfig picks up a changed config file in the running process:
// logger verbosity and the API credential can change without a restart.
func (a *app) applyConfig(cfg config.Config) {
	if cfg.Debug {
		a.level.SetLevel(zapcore.DebugLevel)
	} else {
		a.level.SetLevel(zapcore.WarnLevel)
	}
	if cfg.APIToken != a.cfg.APIToken && cfg.APIToken != "" {
		a.client.SetToken(cfg.APIToken)
	}
	*a.cfg = cfg
	a.log.Info("configuration reloaded")
}

// watchConfig follows config file edits for the lifetime of ctx.
func (a *app) watchConfig(ctx context.Context) {
	if a.mgr == nil {
		return
	}
	if err := a.mgr.Watch(ctx, a.applyConfig); err != nil {
		a.log.Warn("config watch unavailable", zap.Error(err))
	}
}

// NewRootCmd builds the sitewizard command tree. Running the bare
// binary starts the wizard.
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		a          *app
	)

	root := &cobra.Command{
		Use:   "sitewizard",
		Short: "Guided website builder for export businesses",
		Long: "sitewizard walks you through a short conversation about your business\n" +
			"and generates a complete website from your answers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts := []config.ManagerOption{config.WithInitialConfig(config.DefaultConfig())}
			if configPath != "" {
				opts = append(opts, config.WithConfigPath(configPath))
			}
			mgr, err := config.NewManager(opts...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg := mgr.Get()
			if debug {
				cfg.Debug = true
			}
			a, err = newApp(&cfg)
			if err != nil {
				return err
			}
			a.mgr = mgr
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.watchConfig(cmd.Context())
			return newWizardSession(a).Start(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "wizard",
			Short: "Start or resume the guided conversation",
			RunE: func(cmd *cobra.Command, args []string) error {
				a.watchConfig(cmd.Context())
				return newWizardSession(a).Start(cmd.Context())
			},
		},
		newStatusCmd(&a),
		newGenerateCmd(&a),
		newResetCmd(&a),
		newConfigCmd(&a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return nil
			},
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println("sitewizard " + version)
			},
		},
	)
	return root
}

func newStatusCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active generation job, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := (*a).client.ActiveJob(cmd.Context())
			if err != nil {
				return fmt.Errorf("check job status: %w", err)
			}
			if job == nil {
				fmt.Println("No generation job running.")
				return nil
			}
			fmt.Printf("Job %s is %s.\n", job.JobID, job.Status)
			return nil
		},
	}
}

func newGenerateCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a website from the collected profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ap := *a
			p, ok := ap.store.LoadProfile()
			if !ok || !p.HasMeaningfulData() {
				fmt.Println("Nothing to generate yet. Run the wizard first.")
				return nil
			}
			guard := jobs.NewGuard(ap.client, ap.store, ap.cfg.UserID, ap.log)
			res, err := guard.StartGeneration(cmd.Context(), p, nil)
			if err != nil {
				return fmt.Errorf("start generation: %w", err)
			}
			if res.AlreadyActive {
				printJobNotice(res.JobID)
				awaitVerification(res.Verified)
				return nil
			}
			fmt.Println("🚀 Generation started! Job " + res.JobID)
			return nil
		},
	}
}

func newResetCmd(a **app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all saved progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				fmt.Println("This deletes your saved profile and conversation. Re-run with --force to confirm.")
				return nil
			}
			if err := (*a).store.Reset(); err != nil {
				return fmt.Errorf("reset state: %w", err)
			}
			fmt.Println("All saved progress deleted.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip confirmation")
	return cmd
}

func newConfigCmd(a **app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *(*a).cfg
			if cfg.APIToken != "" {
				cfg.APIToken = "****"
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ap := *a
			cfg := ap.mgr.Get()
			if err := setConfigField(&cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := ap.mgr.Update(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Printf("Set %s in %s\n", args[0], ap.mgr.Path())
			return nil
		},
	})
	return cmd
}

// setConfigField maps a "config set" key to its Config field. Keys match
// the file's json tags.
func setConfigField(cfg *config.Config, key, value string) error {
	switch key {
	case "api_base_url":
		cfg.APIBaseURL = value
	case "api_token":
		cfg.APIToken = value
	case "user_id":
		cfg.UserID = value
	case "state_dir":
		cfg.StateDir = value
	case "debug":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("debug takes true or false, got %q", value)
		}
		cfg.Debug = v
	case "request_timeout_sec", "retry_max", "retry_base_delay_ms", "session_ttl_hours":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s takes a number, got %q", key, value)
		}
		switch key {
		case "request_timeout_sec":
			cfg.RequestTimeoutSec = v
		case "retry_max":
			cfg.RetryMax = v
		case "retry_base_delay_ms":
			cfg.RetryBaseDelayMS = v
		case "session_ttl_hours":
			cfg.SessionTTLHours = v
		}
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}
