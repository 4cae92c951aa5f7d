package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

var _ generation.DatabaseTx = (*DatabaseTx)(nil)

// DatabaseTx runs every Database method inside one transaction.
type DatabaseTx struct {
	*Database
	tx pgx.Tx
}

func newDatabaseTx(tx pgx.Tx) *DatabaseTx {
	return &DatabaseTx{Database: NewDatabase(tx), tx: tx}
}

// Commit implements generation.DatabaseTx.
func (dtx *DatabaseTx) Commit(ctx context.Context) error {
	return closeTx(dtx.tx.Commit(ctx), "commit")
}

// Rollback implements generation.DatabaseTx.
func (dtx *DatabaseTx) Rollback(ctx context.Context) error {
	return closeTx(dtx.tx.Rollback(ctx), "rollback")
}

func closeTx(err error, op string) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return generation.ErrTxAlreadyClosed
	} else if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
