package sqlite

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/pkg/database"
)

type txKey struct{}

// DB implements port.TransactionManager on a SQLite connection. The open
// transaction travels in the context so every repository call joins it.
type DB struct {
	conn   *database.DB
	logger *zap.Logger
}

// NewDB creates the transaction manager over conn
func NewDB(conn *database.DB, logger *zap.Logger) *DB {
	return &DB{conn: conn, logger: logger}
}

// WithTransaction runs fn in a transaction. Nested calls reuse the
// transaction already carried by ctx and commit with the outermost call.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}
	err := db.conn.Tx(ctx, func(tx *sql.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	if err != nil {
		db.logger.Debug("Transaction rolled back", zap.Error(err))
	}
	return err
}

// InTransaction reports whether ctx carries an open transaction
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// Executor returns the transaction carried by ctx, or the pool outside one
func (db *DB) Executor(ctx context.Context) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.conn.DB
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

var _ port.TransactionManager = (*DB)(nil)
