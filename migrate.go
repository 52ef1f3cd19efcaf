package main

import (
	"github/itish2003/ainotes/config"
	"github/itish2003/ainotes/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.ConfigureLogging()

		db, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		if cfg.Vector.Backend == "pgvector" {
			index := services.NewPGVectorIndex(db, cfg.Embedding.Model, cfg.Vector.Dimension)
			if err := index.Migrate(cmd.Context()); err != nil {
				return err
			}
		}
		logrus.Info("MIGRATE: Schema is up to date")
		return nil
	},
}
