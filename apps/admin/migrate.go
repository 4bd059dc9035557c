package main

import (
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/trezcool/onhold/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := cli.database(ctx)
			if err != nil {
				return err
			}
			dir, err := database.PrepareMigrations(db)
			if err != nil {
				return err
			}
			return gooseRunFunc(ctx, args[0], db.DB, dir, args[1:]...)
		},
	}
}
