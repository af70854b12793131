package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/storage/database"
)

var migrateCommands = map[string]bool{"up": true, "down": true, "status": true}

// migrate runs a goose command against the configured SQL store.
func (cli *commandLine) migrate(ctx context.Context, command string, args ...string) error {
	if !migrateCommands[command] {
		return errors.Errorf("%q: no such command", command)
	}
	if cli.conf.Store.Backend != core.StoreDatabase {
		return errors.Errorf("migrate requires the %q store backend (got %q)", core.StoreDatabase, cli.conf.Store.Backend)
	}
	db, err := database.Open(ctx, cli.conf.Store.Database.Engine, cli.conf.Store.Database.DSN)
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer db.Close()
	return database.Migrate(ctx, db, command, args...)
}
