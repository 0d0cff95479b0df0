package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Apply runs all embedded catalog migrations up against the pool's database.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	m, closeDB, err := open(ctx, pool)
	if err != nil {
		return err
	}
	defer closeDB()
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("migrate up: %w (hint: every migration version needs both `.up.sql` and `.down.sql`)", err)
		}
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Version reports the applied schema version and whether it is dirty.
func Version(ctx context.Context, pool *pgxpool.Pool) (uint, bool, error) {
	m, closeDB, err := open(ctx, pool)
	if err != nil {
		return 0, false, err
	}
	defer closeDB()
	defer m.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func open(ctx context.Context, pool *pgxpool.Pool) (*migrate.Migrate, func(), error) {
	srcDriver, err := iofs.New(migrationsFS, "sql")
	if err != nil {
		return nil, nil, fmt.Errorf("init iofs: %w", err)
	}

	sqlDB, err := sql.Open("pgx", pool.Config().ConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("open sql db: %w", err)
	}
	closeDB := func() { _ = sqlDB.Close() }

	if err := sqlDB.PingContext(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("ping sql db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("init db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "pgx", dbDriver)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, closeDB, nil
}
