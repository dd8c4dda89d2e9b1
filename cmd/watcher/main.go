// File: cmd/watcher/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/nft-trade-watcher/internal/config"
	"github.com/smartdevs17/nft-trade-watcher/internal/conversation"
	"github.com/smartdevs17/nft-trade-watcher/internal/gateway"
	"github.com/smartdevs17/nft-trade-watcher/internal/metrics"
	"github.com/smartdevs17/nft-trade-watcher/internal/notify"
	"github.com/smartdevs17/nft-trade-watcher/internal/poller"
	"github.com/smartdevs17/nft-trade-watcher/internal/server"
	"github.com/smartdevs17/nft-trade-watcher/internal/storage"
	"github.com/smartdevs17/nft-trade-watcher/internal/telegram"
	"github.com/smartdevs17/nft-trade-watcher/internal/tracker"
	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	storage      storage.Storage
	gateway      *gateway.HTTPGateway
	registry     *tracker.Registry
	telegram     *telegram.Client
	dispatcher   *notify.Dispatcher
	conversation *conversation.Manager
	listener     *telegram.Listener
	engine       *poller.Engine
	metrics      *metrics.Metrics
	server       *server.HTTPServer
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initializeTrackers(); err != nil {
		return fmt.Errorf("failed to initialize trackers: %w", err)
	}
	if err := app.initializeTelegram(); err != nil {
		return fmt.Errorf("failed to initialize telegram: %w", err)
	}
	if err := app.initializePoller(); err != nil {
		return fmt.Errorf("failed to initialize poller: %w", err)
	}
	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.Info("Initializing storage layer")

	storageCfg := &storage.Config{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
	}

	var err error
	app.storage, err = storage.NewStorage(storageCfg)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := app.storage.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := app.storage.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// initializeTrackers initializes the request gateway and tracker registry
func (app *Application) initializeTrackers() error {
	app.logger.Info("Initializing marketplace trackers")

	app.metrics = metrics.New()

	gatewayCfg := &gateway.Config{
		WindowCalls:  app.config.Gateway.WindowCalls,
		Window:       app.config.Gateway.Window,
		GlobalCalls:  app.config.Gateway.GlobalCalls,
		GlobalWindow: app.config.Gateway.GlobalWindow,
		Timeout:      app.config.Gateway.Timeout,
	}
	app.gateway = gateway.NewHTTPGateway(gatewayCfg)
	app.gateway.SetMetrics(app.metrics)

	trackerCfg := &tracker.Config{
		OpenSeaAPIKey:   app.config.Marketplaces.OpenSeaAPIKey,
		OpenSeaAPIURL:   app.config.Marketplaces.OpenSeaAPIURL,
		MagicEdenAPIKey: app.config.Marketplaces.MagicEdenAPIKey,
		MagicEdenAPIURL: app.config.Marketplaces.MagicEdenAPIURL,
	}
	app.registry = tracker.NewRegistry(trackerCfg, app.gateway)

	app.logger.Info("Marketplace trackers initialized")
	return nil
}

// initializeTelegram initializes the Bot API client and conversation manager
func (app *Application) initializeTelegram() error {
	app.logger.Info("Initializing Telegram transport")

	var err error
	app.telegram, err = telegram.NewClient(&telegram.Config{
		Token:       app.config.Telegram.Token,
		APIURL:      app.config.Telegram.APIURL,
		Timeout:     app.config.Telegram.Timeout,
		PollTimeout: app.config.Telegram.PollTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}

	app.dispatcher = notify.NewDispatcher(app.telegram)
	app.dispatcher.SetMetrics(app.metrics)
	app.conversation = conversation.NewManager(
		app.storage, app.registry, conversation.NewMemorySessionStore(), app.telegram, app.metrics)
	app.listener = telegram.NewListener(app.telegram, app.conversation)

	app.logger.Info("Telegram transport initialized successfully")
	return nil
}

// initializePoller initializes the polling engine
func (app *Application) initializePoller() error {
	app.logger.Info("Initializing polling engine")

	pollerCfg := &poller.Config{
		InstantInterval: app.config.Polling.InstantInterval,
		TenMinInterval:  app.config.Polling.TenMinInterval,
		HourlyInterval:  app.config.Polling.HourlyInterval,
	}
	app.engine = poller.NewEngine(app.storage, app.registry, app.dispatcher, pollerCfg, app.metrics)

	app.logger.Info("Polling engine initialized successfully")
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	serverCfg := &server.Config{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}

	var err error
	app.server, err = server.NewHTTPServer(serverCfg, app.storage, app.engine)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting NFT Trade Watcher")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := app.listener.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start telegram listener: %w", err)
	}
	if err := app.engine.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start polling engine: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"storage":        app.config.Storage.Type,
	}).Info("NFT Trade Watcher started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping NFT Trade Watcher")

	app.cancel()

	// Stop components in reverse order
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.Error("Failed to stop HTTP server: ", err)
		}
	}
	if app.engine != nil {
		if err := app.engine.Stop(); err != nil {
			app.logger.Error("Failed to stop polling engine: ", err)
		}
	}
	if app.listener != nil {
		if err := app.listener.Stop(); err != nil {
			app.logger.Error("Failed to stop telegram listener: ", err)
		}
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.Error("Failed to close storage: ", err)
		}
	}

	app.logger.Info("NFT Trade Watcher stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "nft-trade-watcher",
	Short:   "NFT Transaction Tracker Bot",
	Long:    `A Telegram bot that tracks NFT sales and purchases across multiple blockchains and marketplaces and alerts subscribed users.`,
	Version: AppVersion,
	RunE:    runWatcher,
}

// runWatcher is the main command to run the watcher
func runWatcher(cmd *cobra.Command, args []string) error {
	// Best effort: local development reads credentials from .env
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
	}

	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("NFT Trade Watcher %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		godotenv.Load()

		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Instant poll interval: %s\n", cfg.Polling.InstantInterval)

		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
