package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// txContextKey stashes the active pgx.Tx in a context so repositories keep
// calling the same Client.Query/QueryRow/Exec methods whether or not their
// caller is inside a TransactionManager.WithTransaction block.
type txContextKey struct{}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx
}

type TransactionManager struct {
	client *Client
}

func NewTransactionManager(client *Client) *TransactionManager {
	return &TransactionManager{
		client: client,
	}
}

// WithTransaction begins a transaction, runs fn against a context carrying
// it, and commits on success or rolls back on error. Every repository call
// made with the ctx fn receives — directly or through further wrapping —
// is scoped to the same transaction, since Client.Query/QueryRow/Exec pull
// the active pgx.Tx out of ctx rather than going straight to the pool.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tm.client.pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	tx, err := tm.client.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txContextKey{}, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("transaction failed: %v; rollback also failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
