package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/h0rv/boardsync/internal/auth"
	"github.com/h0rv/boardsync/internal/config"
	"github.com/h0rv/boardsync/internal/gh"
	"github.com/h0rv/boardsync/internal/reconcile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// CLI flags
	configFile string
	sinceFlag  string
	showIDs    bool

	v = config.NewViper()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "boardsync",
		Short: "Keep a GitHub Projects v2 board in sync with its repositories",
		Long: `boardsync reconciles an organization's GitHub Projects v2 board.

Without a subcommand it runs both passes:
  1. close-items: move items whose issue or pull request is closed to Done
  2. sync-issues: add recently updated repository issues to the board

Configuration comes from environment variables (API_GITHUB_TOKEN,
GITHUB_ORG_NAME, GITHUB_PROJECT_NUMBER, GITHUB_REPO_NAMES, ...) or a YAML
file passed with --config.

Authentication falls back to GITHUB_TOKEN and then 'gh auth token' when
API_GITHUB_TOKEN is not set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			return a.rec.Run(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("dry-run", false, "Log intended mutations without sending them")
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))

	rootCmd.AddCommand(closeItemsCmd(), syncIssuesCmd(), removeItemCmd(), boardCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func closeItemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close-items",
		Short: "Move items with closed issues or pull requests to Done",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			_, err = a.rec.CloseCompletedItems(cmd.Context())
			return err
		},
	}
}

func syncIssuesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-issues",
		Short: "Add recently updated repository issues to the board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var since time.Time
			if sinceFlag != "" {
				parsed, err := config.ParseSince(sinceFlag)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				since = parsed
			}

			a, err := setup()
			if err != nil {
				return err
			}
			_, err = a.rec.SyncIssues(cmd.Context(), since)
			return err
		},
	}
	cmd.Flags().StringVar(&sinceFlag, "since", "", "Only sync issues updated since this date (YYYY-MM-DD or RFC 3339)")
	return cmd
}

func removeItemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-item ITEM_ID",
		Short: "Delete an item from the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			return a.rec.RemoveItem(cmd.Context(), args[0])
		},
	}
}

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the board's status columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			return printBoard(cmd.Context(), cmd.OutOrStdout(), a, showIDs)
		},
	}
	cmd.Flags().BoolVar(&showIDs, "ids", false, "List item IDs under each column")
	return cmd
}

// app bundles the components every subcommand needs.
type app struct {
	cfg    *config.Config
	log    *logrus.Entry
	client *gh.Client
	rec    *reconcile.Reconciler
}

func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	client, err := gh.New(cfg.Endpoint, cfg.Token,
		gh.WithTimeout(cfg.HTTPTimeout),
		gh.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	rec, err := reconcile.New(cfg, client, reconcile.WithLogger(log))
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, client: client, rec: rec}, nil
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("boardsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		token, err := auth.DefaultChain().GetToken()
		if err != nil {
			return nil, fmt.Errorf("%w\n\nSet API_GITHUB_TOKEN or GITHUB_TOKEN, or authenticate using:\n  gh auth login", err)
		}
		cfg.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger.WithFields(logrus.Fields{
		"run_id":         uuid.NewString(),
		"org":            cfg.Org,
		"project_number": cfg.ProjectNumber,
		"dry_run":        cfg.DryRun,
	}), nil
}
