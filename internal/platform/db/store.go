package db

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/comitetoraxvm/comite-torax/internal/platform/errs"
)

type contextKey string

const txKey contextKey = "db_tx"

// TxFromContext retrieves the transaction carried in ctx, if any. Repositories
// use it so that writes made inside Store.WithTx share one transaction.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// WithTxContext returns a child context carrying tx.
func WithTxContext(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// CommitHook is invoked after a Store transaction commits durably. Hooks run
// off the critical path of the committing caller.
type CommitHook func(ctx context.Context)

// Store wraps the connection pool with transaction scoping and post-commit
// notification. It is the seam between the clinical record store and the
// backup subsystem: every committed write fires the registered hooks.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger

	mu    sync.RWMutex
	hooks []CommitHook
}

func NewStore(pool *pgxpool.Pool, logger zerolog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Pool exposes the underlying pool for read paths that do not need a
// transaction.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// OnCommit registers a hook fired after every successful WithTx commit.
func (s *Store) OnCommit(h CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// WithTx runs fn inside a transaction. The transaction is carried in the
// context handed to fn, so repository calls join it automatically. On error
// the transaction is rolled back and no partial writes survive; on commit the
// registered hooks are fired asynchronously.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Storagef(err, "begin transaction")
	}

	if err := fn(WithTxContext(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("transaction rollback failed")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.Storagef(err, "commit transaction")
	}

	s.fireHooks(ctx)
	return nil
}

func (s *Store) fireHooks(ctx context.Context) {
	s.mu.RLock()
	hooks := make([]CommitHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()

	// Hooks must never block the committing caller beyond scheduling.
	go func() {
		for _, h := range hooks {
			h(context.WithoutCancel(ctx))
		}
	}()
}
