// Package cmd defines and implements the CLI commands for the novelpress
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/config"
	"github.com/tanukirift/novelpress/internal/logging"
	"github.com/tanukirift/novelpress/internal/metrics"
	"github.com/tanukirift/novelpress/internal/store"
)

var (
	cfgFile     string
	development bool
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application services that commands use. Keeping it an
// interface lets tests inject a mock app.
type App interface {
	Close()
	Logger() *zap.Logger
	Store() *store.FileStore
}

type appServices struct {
	logger *zap.Logger
	store  *store.FileStore
}

func (a *appServices) Close() {
	_ = a.logger.Sync()
}

func (a *appServices) Logger() *zap.Logger     { return a.logger }
func (a *appServices) Store() *store.FileStore { return a.store }

// newApp is the application factory. It is a variable so tests can swap
// in a mock factory.
var newApp = func(_ context.Context) (App, error) {
	logger, err := logging.New(development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	harvestCfg, err := config.LoadHarvest(viper.GetViper())
	if err != nil {
		return nil, err
	}
	st, err := store.NewFileStore(harvestCfg.OutputDir, logger)
	if err != nil {
		return nil, err
	}
	return &appServices{logger: logger, store: st}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "novelpress",
		Short: "Batch harvesting and translation for serialized web novels.",
		Long: `novelpress fetches a web novel's table of contents and episodes,
converts them into clean JSON records, and translates them chapter by
chapter with durable resumable progress.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cobra.OnInitialize(func() {
		config.InitConfig(cfgFile)
	})

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./novelpress.yaml)")
	cmd.PersistentFlags().BoolVar(&development, "dev", false, "use human-readable development logging")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newTranslateCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
