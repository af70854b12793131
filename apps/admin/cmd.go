package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/coursereview/apps/shared"
	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/storage"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	mail   core.EmailService
	out    io.Writer

	// openStore opens the review store on first use; migrate never needs it.
	openStore func(ctx context.Context) (storage.Backend, error)
	backend   storage.Backend
	app       *shared.App
}

// subcommand parses its own flags from args and runs.
type subcommand struct {
	synopsis string
	run      func(ctx context.Context, cli *commandLine, fs *flag.FlagSet, args []string) error
}

var subcommands = []struct {
	name string
	subcommand
}{
	{"adduser", subcommand{"-email EMAIL -display NAME [-admin]  create or update a verified account", runAddUser}},
	{"resetpassword", subcommand{"-email EMAIL  reset an account's password", runResetPassword}},
	{"migrate", subcommand{"up|down|status  run the SQL store migrations", runMigrate}},
	{"export", subcommand{"-format csv|json [-o FILE] [-email ADDRESS]  export the reviews", runExport}},
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	for _, sc := range subcommands {
		_, _ = fmt.Fprintf(cli.out, "  %s %s\n", sc.name, sc.synopsis)
	}
}

// getApp opens the store and builds the services once.
func (cli *commandLine) getApp(ctx context.Context) (*shared.App, error) {
	if cli.app != nil {
		return cli.app, nil
	}
	backend, err := cli.openStore(ctx)
	if err != nil {
		return nil, err
	}
	app, err := shared.NewApp(shared.Deps{Conf: cli.conf, Logger: cli.logger, Backend: backend, Mail: cli.mail})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	cli.backend, cli.app = backend, app
	return app, nil
}

func (cli *commandLine) close() error {
	if cli.backend == nil {
		return nil
	}
	return cli.backend.Close()
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// promptPassword reads a password without echoing it. An empty password prints the usage of fs.
func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) >= 2 {
		for _, sc := range subcommands {
			if sc.name == args[1] {
				return sc.run(ctx, cli, cli.newFlagSet(sc.name), args[2:])
			}
		}
	}
	cli.printUsage()
	return errHelp
}

func runAddUser(ctx context.Context, cli *commandLine, fs *flag.FlagSet, args []string) error {
	email := fs.String("email", "", "The account email. The password will be prompted next.")
	display := fs.String("display", "", "The display name.")
	admin := fs.Bool("admin", false, "Grant the admin role.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *display == "" {
		fs.Usage()
		return errHelp
	}
	pwd, err := cli.promptPassword(fs)
	if err != nil {
		return err
	}
	return cli.addUser(ctx, *email, *display, pwd, *admin)
}

func runResetPassword(ctx context.Context, cli *commandLine, fs *flag.FlagSet, args []string) error {
	email := fs.String("email", "", "The account email. The password will be prompted next.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errHelp
	}
	pwd, err := cli.promptPassword(fs)
	if err != nil {
		return err
	}
	return cli.resetPassword(ctx, *email, pwd)
}

func runMigrate(ctx context.Context, cli *commandLine, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		_, _ = fmt.Fprintln(fs.Output(), "Usage: migrate up|down|status")
		return errHelp
	}
	return cli.migrate(ctx, fs.Arg(0), fs.Args()[1:]...)
}

func runExport(ctx context.Context, cli *commandLine, fs *flag.FlagSet, args []string) error {
	format := fs.String("format", "csv", "csv (approved reviews) or json (both collections).")
	out := fs.String("o", "", "Output file. Defaults to stdout.")
	email := fs.String("email", "", "Also email the export as an attachment to this address.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return cli.export(ctx, *format, *out, *email)
}
