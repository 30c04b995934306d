package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vpnda/bankpoll/db"
	"github.com/vpnda/bankpoll/pkg/config"
	"github.com/vpnda/bankpoll/pkg/services"
	"github.com/vpnda/bankpoll/pkg/source"
	"github.com/vpnda/bankpoll/pkg/utils"
)

var (
	configPath string
	logLevel   string
	rootCmd    *cobra.Command
)

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd = &cobra.Command{
		Use:   "bankpoll",
		Short: "Poll bank accounts and reconcile their transactions",
		Long: `Bankpoll fetches accounts and transactions from an external banking backend,
merges them into a local SQLite database and sends digests and alerts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show the current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig()
		},
	}

	rootCmd.AddCommand(
		configCmd,
		newPollCmd(),
		newSyncCmd(),
		newAccessCmd(),
		newAccountsCmd(),
		newDuplicatesCmd(),
		newReportCmd(),
		newAlertCmd(),
		newSourceCmd(),
	)
}

func loadConfig() error {
	if err := config.InitGlobalConfig(configPath); err != nil {
		// GetConfig writes the defaults, only for the default location
		if !errors.Is(err, os.ErrNotExist) || configPath != config.DefaultConfigPath {
			return err
		}
		log.Warn().Str("path", configPath).Msg("Configuration file not found, writing defaults")
	}

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	return nil
}

// app wires the database, the source and the services for one command.
type app struct {
	cfg      *config.Config
	db       db.DBInterface
	source   source.Source
	notifier services.Notifier
	syncer   *services.Syncer
	reports  *services.ReportManager
}

func openApp() (*app, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := database.Initialize(); err != nil {
		database.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	src, err := source.New(cfg.Source)
	if err != nil {
		database.Close()
		return nil, err
	}

	notifier := services.LogNotifier{}
	alerts := services.NewAlertChecker(database, notifier, cfg.Reports.GetAlertDebounce(), cfg.Reports.DefaultCurrency)
	syncer := services.NewSyncer(src, database, alerts)
	syncer.SetDebug(cfg.Source.Debug)

	return &app{
		cfg:      cfg,
		db:       database,
		source:   src,
		notifier: notifier,
		syncer:   syncer,
		reports:  services.NewReportManager(database, notifier, cfg.Reports.GetWeeklyDay(), cfg.Reports.DefaultCurrency),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database")
	}
}

// withApp runs fn with a freshly opened app and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// showConfig displays the current configuration
func showConfig() {
	cfg, err := config.GetConfig()
	if err != nil {
		log.Error().Err(err).Msg("Error loading configuration")
		return
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("Database:            %s\n", cfg.Database.Path)
	fmt.Printf("Log level:           %s\n", cfg.Logging.Level)
	fmt.Printf("Source kind:         %s\n", cfg.Source.Kind)
	if cfg.Source.Kind != "demo" {
		fmt.Printf("Source executable:   %s %s\n", cfg.Source.Executable, strings.Join(cfg.Source.Args, " "))
		fmt.Printf("Source timeout:      %s\n", cfg.Source.GetTimeout())
		fmt.Printf("Minimum version:     %s\n", cfg.Source.MinVersion)
		if cfg.Source.SourcesList != "" {
			fmt.Printf("Sources list:        %s\n", utils.MaskSecret(cfg.Source.SourcesList))
		}
	}
	if cfg.Poll.Schedule != "" {
		fmt.Printf("Poll schedule:       %s\n", cfg.Poll.Schedule)
	} else {
		fmt.Printf("Poll window (UTC):   %02d:00-%02d:00\n", cfg.Poll.LowHour, cfg.Poll.HighHour)
	}
	fmt.Printf("Auto update:         %t\n", cfg.Poll.AutoUpdate)
	fmt.Printf("Auto merge accounts: %t\n", cfg.Poll.AutoMergeAccounts)
	fmt.Printf("Duplicate threshold: %dh\n", cfg.Duplicates.ThresholdHours)
	fmt.Printf("Weekly reports on:   %s\n", cfg.Reports.GetWeeklyDay())
}
