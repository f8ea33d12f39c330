package pgxutil

// Package pgxutil lends pgx connections out of a database/sql pool so the
// repositories can use pgx row helpers while the process shares one *sql.DB.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ReadCommitted is the isolation used by create-if-absent writes: the select
// after an ON CONFLICT DO NOTHING insert sees a row committed concurrently.
var ReadCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// Conn runs fn with a pgx connection borrowed from db. The connection goes back
// to the pool when fn returns.
func Conn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && !errors.Is(closeErr, sql.ErrConnDone) {
			err = errors.Join(err, fmt.Errorf("release conn: %w", closeErr))
		}
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T; expected *stdlib.Conn", dc)
		}
		return fn(std.Conn())
	})
}

// Tx runs fn in a pgx transaction on a borrowed connection. The transaction
// commits when fn returns nil and rolls back otherwise.
func Tx(ctx context.Context, db *sql.DB, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return Conn(ctx, db, func(conn *pgx.Conn) error {
		return pgx.BeginTxFunc(ctx, conn, opts, fn)
	})
}
