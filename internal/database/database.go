package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/config"
)

// Querier is the capability every component needs from a database handle.
// *sqlx.DB, *sqlx.Conn and *sqlx.Tx all satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
}

// ConnectionError means a database could not be reached. It is fatal to a run.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Connect opens and pings a database handle for the named target.
func Connect(ctx context.Context, target string, c config.DB) (*sqlx.DB, error) {
	db, err := open(c)
	if err != nil {
		return nil, &ConnectionError{Target: target, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Target: target, Err: err}
	}
	return db, nil
}

func open(c config.DB) (*sqlx.DB, error) {
	switch c.Driver {
	case "pgx", "postgres":
		cc, err := pgx.ParseConfig(c.DSN)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres dsn: %w", err)
		}
		if c.User != "" {
			cc.User = c.User
		}
		if c.Password != "" {
			cc.Password = c.Password
		}
		return sqlx.NewDb(stdlib.OpenDB(*cc), "pgx"), nil
	case "sqlserver":
		dsn, err := withCredentials(c.DSN, c.User, c.Password)
		if err != nil {
			return nil, err
		}
		return sqlx.Open("sqlserver", dsn)
	default:
		return sqlx.Open(c.Driver, c.DSN)
	}
}

// withCredentials sets the user info of a URL-style DSN when credentials are
// supplied separately from it.
func withCredentials(dsn, user, password string) (string, error) {
	if user == "" {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid dsn: %w", err)
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	return u.String(), nil
}
