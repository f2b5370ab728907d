package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// TxFunc runs within a transaction.
type TxFunc func(*sql.Tx) error

// WithTransaction runs fn in a transaction, committing when it returns nil
// and rolling back otherwise. A panic rolls back and is re-raised.
func (db *DB) WithTransaction(ctx context.Context, fn TxFunc) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
			return
		}
		if err = tx.Commit(); err != nil {
			err = fmt.Errorf("failed to commit transaction: %w", err)
		}
	}()

	return fn(tx)
}
