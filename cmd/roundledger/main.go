// Package main provides the entry point for the round ledger node.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"roundledger/internal/config"
	"roundledger/internal/coordinator"
	dbpkg "roundledger/internal/db"
	"roundledger/internal/exceptions"
	"roundledger/internal/logger"
	"roundledger/internal/store"
	"roundledger/internal/store/ldbstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once the configuration is loaded.
type app struct {
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "roundledger",
		Short:         "Round consensus accounting for a delegated proof-of-stake chain",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			// Try to load .env if present; otherwise use environment as-is
			if _, statErr := os.Stat(envFile); statErr == nil {
				if err := godotenv.Load(envFile); err != nil {
					return errors.Wrapf(err, "load %s", envFile)
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newRunCmd(a),
		newStatusCmd(a),
		newReplayCmd(a),
		newMigrateCmd(a),
	)
	return root
}

// logger opens the log file, or logs to stderr when no file is configured.
func (a *app) logger() (*logger.Logger, error) {
	if a.cfg.LogFile == "" {
		return logger.New(a.cfg.Debug), nil
	}
	return logger.NewWithFile(a.cfg.LogFile, a.cfg.Debug)
}

// openStore opens the configured storage engine. Postgres schemas are
// migrated to the latest version first.
func (a *app) openStore(log *logger.Logger) (store.Store, error) {
	switch a.cfg.Store() {
	case config.StorePostgres:
		gormDB, err := dbpkg.Open(a.cfg)
		if err != nil {
			return nil, errors.Wrap(err, "connect database")
		}
		log.Printf("DB connected")
		if err := dbpkg.MigrateUp(gormDB); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		log.Printf("Migrations applied")
		return dbpkg.NewStore(gormDB), nil
	default:
		path := filepath.Join(a.cfg.DataDir, "ledger")
		s, err := ldbstore.Open(path, log)
		if err != nil {
			return nil, err
		}
		log.Printf("LevelDB opened at %s", path)
		return s, nil
	}
}

func (a *app) coordinatorConfig() coordinator.Config {
	return coordinator.Config{
		SlotCount:         a.cfg.ActiveDelegates,
		SnapshotRetention: a.cfg.SnapshotRetention,
		Remainder:         a.cfg.FeesRemainder,
		MaxRetries:        a.cfg.StorageMaxRetries,
		RetryBackoff:      a.cfg.StorageRetryBackoff,
	}
}

func (a *app) newCoordinator(s store.Store, log *logger.Logger, opts ...coordinator.Option) (*coordinator.Coordinator, error) {
	table, err := a.cfg.Exceptions()
	if err != nil {
		return nil, err
	}
	logExceptions(log, table)
	return coordinator.New(s, table, a.coordinatorConfig(), log, opts...)
}

func logExceptions(log *logger.Logger, table *exceptions.Table) {
	if table.Len() > 0 {
		log.Printf("loaded %d round exceptions: %v", table.Len(), table.Rounds())
	}
}
