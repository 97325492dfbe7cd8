// Package migrations embeds the event store's schema SQL and drives it
// through internal/db's sql-migrate wrapper.
package migrations

import (
	_ "embed"

	"github.com/goran-ethernal/eventstore/internal/db"
	"github.com/goran-ethernal/eventstore/pkg/config"
)

//go:embed 001_artifacts.sql
var migArtifacts string

//go:embed 002_intervals.sql
var migIntervals string

//go:embed 003_factory.sql
var migFactory string

//go:embed 004_readcache.sql
var migReadCache string

//go:embed 005_factory_children.sql
var migFactoryChildren string

// RunMigrations brings a database at cfg.Path up to the current schema.
func RunMigrations(cfg config.DatabaseConfig) error {
	migs := []db.Migration{
		{ID: "001_artifacts.sql", SQL: migArtifacts},
		{ID: "002_intervals.sql", SQL: migIntervals},
		{ID: "003_factory.sql", SQL: migFactory},
		{ID: "004_readcache.sql", SQL: migReadCache},
		{ID: "005_factory_children.sql", SQL: migFactoryChildren},
	}

	return db.RunMigrations(cfg.Path, migs)
}
