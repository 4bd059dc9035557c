package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/onhold/apps/di"
	"github.com/trezcool/onhold/core"
	logsvc "github.com/trezcool/onhold/services/logger"
	"github.com/trezcool/onhold/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp          = errors.New("help provided")
	errEmptyPassword = errors.New("password cannot be empty")
)

// commandLine opens the database and wires the services only for the commands that need them.
type commandLine struct {
	conf   *core.Config
	logger *logsvc.RollbarLogger
	out    io.Writer

	db *sqlx.DB
	c  *di.Container
}

func newCommandLine(conf *core.Config, logger *logsvc.RollbarLogger, out io.Writer) *commandLine {
	return &commandLine{conf: conf, logger: logger, out: out}
}

func (cli *commandLine) run(args []string) error {
	root := cli.newRootCommand()
	root.SetArgs(args[1:])
	return root.Execute()
}

func (cli *commandLine) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "OnHold administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.newDecryptCommand(),
		cli.newGenKeyCommand(),
		cli.newMigrateCommand(),
		cli.newAddUserCommand(),
		cli.newResetPasswordCommand(),
		cli.newRemindersCommand(),
	)
	return root
}

// database opens the configured database without migrating it.
func (cli *commandLine) database(ctx context.Context) (*sqlx.DB, error) {
	if cli.db != nil {
		return cli.db, nil
	}
	if err := database.CreateIfNotExist(ctx, cli.conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(cli.conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = database.Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	cli.db = db
	return db, nil
}

// container opens and migrates the database, then wires the services.
func (cli *commandLine) container(ctx context.Context) (*di.Container, error) {
	if cli.c != nil {
		return cli.c, nil
	}
	c, err := di.New(ctx, cli.conf, cli.logger)
	if err != nil {
		return nil, err
	}
	cli.c = c
	return c, nil
}

func (cli *commandLine) close() {
	if cli.c != nil {
		_ = cli.c.Close()
	}
	if cli.db != nil {
		_ = cli.db.Close()
	}
}

func (cli *commandLine) readPassword(prompt string) (string, error) {
	_, _ = fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	return string(pwd), nil
}
