package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file from the embedded template when missing, then initializes the database and runs migrations.
//
// With --rollback it reverts the most recent migration and leaves the config untouched.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("rollback") {
		return r.rollback()
	}

	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if err := r.loadConfig(configPath); err != nil {
			r.logger.Warn("failed to load created config, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if _, err := r.openStore(); err != nil {
		return err
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)

	if err := r.config.Validate(); err != nil {
		r.logger.Warn("configuration is incomplete; edit it before syncing", "path", configPath, "error", err)
	}

	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Fill in the [plex], [ytmusic] and [yubal] sections of %s\n", configPath)
	r.writePlain("2. Run 'jamknife playlist add <mbid>' or 'jamknife playlist discover'\n")
	return nil
}

// rollback reverts the latest migration on a database opened without migrating it first.
func (r *Runner) rollback() error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	shared.ConfigureDatabase(db, 1, 1)

	m, err := shared.RollbackMigration(db)
	if err != nil {
		return err
	}

	r.logger.Warn("schema migration rolled back", "version", m.Version, "name", m.Name, "path", r.config.Database.Path)
	return r.writePlain("✓ Rolled back migration %04d_%s; run 'jamknife setup' to re-apply it\n", m.Version, m.Name)
}
