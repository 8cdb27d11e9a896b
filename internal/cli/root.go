package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/me/gatehouse/internal/config"
	"github.com/me/gatehouse/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagUsers     string
	flagBackend   string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.ServerConfig
	logger *slog.Logger
)

// defaultServer returns the default server URL, checking GATEHOUSE_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("GATEHOUSE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8000"
}

// NewRootCmd creates the root cobra command for the gatehouse CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gatehouse",
		Short: "Gatehouse account administration",
		Long:  "Gatehouse manages the user table behind the Gatehouse web server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)

			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			if flagBackend != "" {
				cfg.Users.Backend = flagBackend
			}
			if flagUsers != "" {
				if cfg.Users.Backend == "sqlite" {
					cfg.Users.SQLitePath = flagUsers
				} else {
					cfg.Users.CSVPath = flagUsers
				}
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("flags: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flagUsers, "users", "", "User table path (CSV file or SQLite database)")
	root.PersistentFlags().StringVar(&flagBackend, "backend", "", "User table backend (csv, sqlite)")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Gatehouse server URL (or GATEHOUSE_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSeedCmd(),
		newUserAddCmd(),
		newUsersCmd(),
		newHashCmd(),
		newImportCmd(),
		newStatusCmd(),
	)

	return root
}
