// File: cmd/recycler/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/token-recycle/internal/config"
	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/notification"
	"github.com/smartdevs17/token-recycle/internal/recycle"
	"github.com/smartdevs17/token-recycle/internal/server"
	"github.com/smartdevs17/token-recycle/internal/storage"
	"github.com/smartdevs17/token-recycle/internal/tokens"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the recycling service together
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	storage      storage.Storage
	metrics      *metrics.Manager
	tokens       tokens.Service
	registry     *recycle.Registry
	ledger       *recycle.Ledger
	notification *notification.NotificationManager
	server       *server.HTTPServer
	startTime    time.Time
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance. With serve set the
// notification manager and HTTP server are built as well.
func NewApplication(cfg *config.Config, serve bool) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeConfiguration, "Invalid configuration", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		config:    cfg,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(serve); err != nil {
		app.Stop()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging
	if level := viper.GetString("log-level"); level != "" {
		logCfg.Level = level
	}

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Debug("Logger initialized")
	return nil
}

func (app *Application) initializeComponents(serve bool) error {
	app.metrics = metrics.NewManager()

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	tokenService, err := tokens.NewService(&app.config.Tokens)
	if err != nil {
		return fmt.Errorf("failed to initialize token ledger: %w", err)
	}
	app.tokens = tokens.NewServiceWithMetrics(tokenService, app.metrics)

	var sink recycle.EventSink
	if serve && app.config.Notifications.Enabled {
		if err := app.initializeNotification(); err != nil {
			return fmt.Errorf("failed to initialize notification: %w", err)
		}
		sink = app.notification
	}

	app.registry = recycle.NewRegistry(app.storage, app.metrics)
	app.ledger = recycle.NewLedger(app.storage, app.tokens, app.registry, sink, app.metrics, recycle.Options{
		ProgramID:      common.HexToAddress(app.config.Ledger.ProgramID),
		AuthoritySeed:  app.config.Ledger.AuthoritySeed,
		RewardMint:     common.HexToAddress(app.config.Ledger.RewardMint),
		ReserveAccount: common.HexToAddress(app.config.Ledger.ReserveAccount),
		LockTimeout:    app.config.Ledger.LockTimeout,
	})

	if serve {
		if err := app.initializeServer(); err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
	}

	return nil
}

func (app *Application) initializeStorage() error {
	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return err
	}
	if err := store.Connect(); err != nil {
		return err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return err
	}

	app.storage = storage.NewStorageWithMetrics(store, app.metrics)
	app.logger.WithField("type", app.config.Storage.Type).Debug("Storage initialized")
	return nil
}

func (app *Application) initializeNotification() error {
	notificationCfg := notification.ConfigFromSettings(&app.config.Notifications, app.config.Logging.Level)

	var err error
	app.notification, err = notification.NewNotificationManager(notificationCfg, app.storage, app.metrics)
	return err
}

func (app *Application) initializeServer() error {
	serverCfg := &server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}

	var err error
	app.server, err = server.NewHTTPServer(serverCfg, app.storage, app.registry, app.ledger, app.notification, app.metrics)
	return err
}

// Start recovers unfinished disposals, then starts delivery and the API
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting token recycle service")

	report, err := app.ledger.RecoverOpenJournals(app.ctx)
	if err != nil {
		return fmt.Errorf("failed to recover open disposals: %w", err)
	}
	if report.Failed > 0 {
		app.logger.WithField("failed", report.Failed).Error("Some disposals need manual reconciliation, see journal list --status compensation_failed")
	}

	if app.notification != nil {
		if err := app.notification.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start notification manager: %w", err)
		}
	}

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"token_backend":  app.config.Tokens.Backend,
		"authority":      app.ledger.Authority().Hex(),
	}).Info("Token recycle service started")
	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notification manager")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.WithField("uptime", time.Since(app.startTime).Round(time.Second).String()).Debug("Application stopped")
	return nil
}

// loadApplication loads configuration and builds the application
func loadApplication(serve bool) (*Application, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewApplication(cfg, serve)
}

// CLI Commands

var rootCmd = &cobra.Command{
	Use:     "recycler",
	Short:   "Token recycling ledger",
	Long:    `Burns dead tokens at registered recycling stations and pays out rewards from a program reserve.`,
	Version: AppVersion,
	RunE:    runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and event delivery",
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	app, err := loadApplication(true)
	if err != nil {
		return err
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		app.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	return app.Stop()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Token Recycle %s\n", AppVersion)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApplication(false)
		if err != nil {
			return err
		}
		defer app.Stop()

		fmt.Printf("Migrations applied to %s storage\n", app.config.Storage.Type)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetString("config"))
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		authority := tokens.NewProgramAuthority(common.HexToAddress(cfg.Ledger.ProgramID), cfg.Ledger.AuthoritySeed)
		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Token backend: %s\n", cfg.Tokens.Backend)
		fmt.Printf("Program authority: %s\n", authority.Address().Hex())
		fmt.Printf("Reserve account: %s\n", cfg.Ledger.ReserveAccount)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(validateConfigCmd)

	addLedgerCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
