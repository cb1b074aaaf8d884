package internal

import (
	"context"
	"database/sql"
	"os"
)

type ctxKey string

const dbConnKey ctxKey = "dbconn"

func rlsEnabled() bool {
	return os.Getenv("RLS_ENABLED") == "true"
}

// withDBConn pins a connection with the requesting user set as a session
// GUC so Postgres row-level security policies can scope reads and writes.
func withDBConn(ctx context.Context, db *sql.DB, userID int64) (*sql.Conn, context.Context, error) {
	if !rlsEnabled() {
		return nil, ctx, nil
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, ctx, err
	}
	// Set session GUC for RLS
	_, err = conn.ExecContext(ctx, "SET app.current_user_id = $1", userID)
	if err != nil {
		conn.Close()
		return nil, ctx, err
	}
	ctx2 := context.WithValue(ctx, dbConnKey, conn)
	return conn, ctx2, nil
}

// Prefer DB from context when RLS on; else use pool directly.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func dbFrom(ctx context.Context, db *sql.DB) querier {
	if !rlsEnabled() {
		return db
	}
	if v := ctx.Value(dbConnKey); v != nil {
		if c, ok := v.(*sql.Conn); ok {
			return c
		}
	}
	return db // fallback
}
