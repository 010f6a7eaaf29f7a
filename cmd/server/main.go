/*
main.go - Application entry point

PURPOSE:
  The advance-engine command. Every subcommand loads configuration (viper,
  EWA_ environment prefix, optional ./config.yaml) and the zap logger first.

SUBCOMMANDS:
  serve   HTTP API with the periodic risk review scheduler
  assess  Score a factor sheet from a YAML file
  token   Mint a development session token
  seed    Load a demo scenario into the database

EXAMPLES:
  # Run with file database
  EWA_AUTH_JWT_SECRET=dev advance-engine serve

  # Run with in-memory database on a different port
  EWA_STORE_PATH=":memory:" EWA_AUTH_JWT_SECRET=dev advance-engine serve --port 3000

  # Score an employer offline
  advance-engine assess factors.yaml

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eaziwage/advance-engine/advance"
	"github.com/eaziwage/advance-engine/config"
	"github.com/eaziwage/advance-engine/employer"
	"github.com/eaziwage/advance-engine/risk"
	"github.com/eaziwage/advance-engine/store/sqlite"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "advance-engine",
	Short: "Earned wage advance platform",
	Long:  "Scores employer risk, prices advance fees, tracks earned wages from payroll and runs the advance lifecycle.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadModel returns the configured risk model, or the built-in one.
func loadModel() (*risk.Model, error) {
	if cfg.Risk.ModelPath == "" {
		return risk.DefaultModel(), nil
	}
	return risk.LoadModel(cfg.Risk.ModelPath)
}

// appEnv is the store and services shared by serve and seed.
type appEnv struct {
	Store     *sqlite.Store
	Employers *employer.Service
	Advances  *advance.Service
}

func newAppEnv() (*appEnv, error) {
	model, err := loadModel()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	employers := employer.NewService(store, model, cfg.EmployerOptions())
	advances := advance.NewService(store, employers, advance.FeeBasis(cfg.Advance.FeeBasis))

	zap.L().Info("store opened",
		zap.String("path", cfg.Store.Path),
		zap.String("model", model.Name),
		zap.String("fee_basis", cfg.Advance.FeeBasis),
	)
	return &appEnv{Store: store, Employers: employers, Advances: advances}, nil
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("closing store", zap.Error(err))
	}
}
