package memory

import (
	"context"
	"fmt"

	"github.com/upb/tenant-rules-admin/repositories"
	"go.uber.org/zap"
)

// transactionContextKey is the context key for storing transactions
type transactionContextKey struct{}

// Begin takes the store lock and snapshots the current state. The lock is
// held until Commit or Rollback.
func (s *Store) Begin(ctx context.Context) (repositories.Transaction, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Transaction{
		store:    s,
		snapshot: s.data.clone(),
	}
	tx.ctx = context.WithValue(ctx, transactionContextKey{}, tx)

	s.logger.Debug("transaction started")
	return tx, nil
}

// InTransaction executes a function within a transaction
// Automatically commits if function succeeds, rolls back on error.
// A ctx already carrying an open transaction of this store joins it; the
// outer transaction decides the outcome.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if outer, ok := transactionFromContext(ctx); ok && outer.store == s && !outer.done {
		return fn(ctx, outer)
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
		return err
	}

	return tx.Commit()
}

// Transaction implements repositories.Transaction over the in-memory state
type Transaction struct {
	store    *Store
	snapshot *state
	ctx      context.Context
	done     bool
}

// Commit keeps the changes and releases the store
func (t *Transaction) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.snapshot = nil
	t.store.release()
	t.store.logger.Debug("transaction committed")
	return nil
}

// Rollback restores the state captured at Begin. Calling it after Commit
// is a no-op.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.data = t.snapshot
	t.snapshot = nil
	t.store.release()
	t.store.logger.Debug("transaction rolled back")
	return nil
}

// Context returns the transaction context
func (t *Transaction) Context() context.Context {
	return t.ctx
}

func transactionFromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(transactionContextKey{}).(*Transaction)
	return tx, ok
}
