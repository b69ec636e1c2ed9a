package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrator owns its own connection: closing the migrate driver closes the
// *sql.DB it wraps.
type migrator struct {
	db *sql.DB
	m  *migrate.Migrate
}

func openMigrator(dbPath string) (*migrator, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open migration database: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &migrator{db: db, m: m}, nil
}

func (g *migrator) close() {
	g.m.Close()
	g.db.Close()
}

// version returns the applied schema version, zero for an empty database.
func (g *migrator) version() (uint, error) {
	v, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}

// RunMigrations brings the schema at dbPath up to date and returns the
// resulting version.
func RunMigrations(dbPath string) (uint, error) {
	g, err := openMigrator(dbPath)
	if err != nil {
		return 0, err
	}
	defer g.close()

	if err := g.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	return g.version()
}

// SchemaVersion reports the schema version at dbPath without migrating.
func SchemaVersion(dbPath string) (uint, error) {
	g, err := openMigrator(dbPath)
	if err != nil {
		return 0, err
	}
	defer g.close()
	return g.version()
}
