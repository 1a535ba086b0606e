// Package dbschema connects to the database a formkit application runs on and
// compares the tables found there with the forms mapped on them.
package dbschema

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver
	_ "github.com/lib/pq"              // registers the pq driver

	"github.com/stokaro/formkit/config"
	"github.com/stokaro/formkit/core/platform"
	"github.com/stokaro/formkit/core/rdb"
)

// Connect opens the database described by cfg and checks that it answers.
//
// The dialect is taken from cfg.Dialect, or derived from the DSN when empty:
// postgres:// and postgresql:// URLs are PostgreSQL, anything else is handed
// to the MySQL driver, with or without a mysql:// prefix.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*rdb.Driver, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("no database dsn configured")
	}
	dialect := DialectOf(cfg)
	driverName, dsn, err := driverDSN(cfg, dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect, err)
	}
	return rdb.NewDriver(db, dialect), nil
}

// driverDSN returns the database/sql driver name and the DSN it is opened with.
func driverDSN(cfg config.DatabaseConfig, dialect string) (string, string, error) {
	switch dialect {
	case platform.Postgres:
		return platform.DriverName(dialect, cfg.Driver == "pq"), removePostgresPoolParams(cfg.DSN), nil
	case platform.MySQL, platform.MariaDB:
		mc, err := mysql.ParseDSN(strings.TrimPrefix(cfg.DSN, "mysql://"))
		if err != nil {
			return "", "", fmt.Errorf("failed to parse mysql dsn: %w", err)
		}
		mc.ParseTime = true
		return platform.DriverMySQL, mc.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("unsupported database dialect %q", cfg.Dialect)
	}
}

// DialectOf returns the configured dialect, or the one implied by the DSN. It
// returns "" when neither is set or the configured dialect is unknown.
func DialectOf(cfg config.DatabaseConfig) string {
	if cfg.Dialect != "" {
		return platform.NormalizeDialect(cfg.Dialect)
	}
	if cfg.DSN == "" {
		return ""
	}
	lower := strings.ToLower(cfg.DSN)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return platform.Postgres
	}
	return platform.MySQL
}

// removePostgresPoolParams drops the pgxpool settings from a connection URL.
// database/sql does not understand them and pq rejects unknown parameters.
func removePostgresPoolParams(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}
	q := u.Query()
	if !q.Has("pool_max_conns") && !q.Has("pool_min_conns") {
		return dsn
	}
	q.Del("pool_max_conns")
	q.Del("pool_min_conns")
	u.RawQuery = q.Encode()
	return u.String()
}
