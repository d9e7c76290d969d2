package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"roundledger/internal/config"
	dbpkg "roundledger/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				gdb, err := a.postgres()
				if err != nil {
					return err
				}
				if err := dbpkg.MigrateUp(gdb); err != nil {
					return err
				}
				return printVersion(gdb)
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations, one step by default",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return errors.Errorf("invalid steps %q", args[0])
					}
					steps = n
				}
				gdb, err := a.postgres()
				if err != nil {
					return err
				}
				if err := dbpkg.MigrateDown(gdb, steps); err != nil {
					return err
				}
				return printVersion(gdb)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				gdb, err := a.postgres()
				if err != nil {
					return err
				}
				return printVersion(gdb)
			},
		},
	)
	return cmd
}

func (a *app) postgres() (*gorm.DB, error) {
	if a.cfg.Store() != config.StorePostgres {
		return nil, errors.New("migrations need DATABASE_URL to point at Postgres")
	}
	gdb, err := dbpkg.Open(a.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}
	return gdb, nil
}

func printVersion(gdb *gorm.DB) error {
	v, dirty, err := dbpkg.SchemaVersion(gdb)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d (dirty=%t)\n", v, dirty)
	return nil
}
