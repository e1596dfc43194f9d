package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Transactor opens transactions on the backing store.
type Transactor interface {
	// Conn returns the connection used outside transactions.
	Conn() any
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open transaction. Begin on a Tx opens a nested transaction, which
// stores usually implement with savepoints.
type Tx interface {
	Conn() any
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Callback runs after the outermost transaction commits.
type Callback func(ctx context.Context) error

// QueryContext scopes store calls to either the root connection or an open
// transaction and collects the callbacks to run once that transaction
// commits.
type QueryContext struct {
	transactor Transactor
	tx         Tx
	logger     *slog.Logger

	mu            sync.Mutex
	invalidations []Callback
	postCommit    []Callback
}

// NewQueryContext returns a non transactional context over t. A nil logger
// uses slog.Default().
func NewQueryContext(t Transactor, logger *slog.Logger) *QueryContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryContext{transactor: t, logger: logger}
}

// IsInTransaction reports whether calls made with qc run in a transaction.
func (qc *QueryContext) IsInTransaction() bool {
	return qc.tx != nil
}

// Conn returns the connection store adapters must use for qc.
func (qc *QueryContext) Conn() any {
	if qc.tx != nil {
		return qc.tx.Conn()
	}
	return qc.transactor.Conn()
}

// Transactor returns the transactor qc was created from.
func (qc *QueryContext) Transactor() Transactor {
	return qc.transactor
}

// RunInTransactionIfNotInTransaction runs fn in qc when it already is a
// transaction and in a new transaction otherwise.
func (qc *QueryContext) RunInTransactionIfNotInTransaction(ctx context.Context, fn func(ctx context.Context, qc *QueryContext) error) error {
	if qc.IsInTransaction() {
		return fn(ctx, qc)
	}
	return qc.runInNewTransaction(ctx, fn)
}

// RunInNestedTransaction runs fn in a transaction nested in qc. When fn fails
// only the nested work is rolled back and its callbacks are dropped. When it
// succeeds the callbacks it registered move to qc and still wait for the
// outermost commit. Outside a transaction it opens a new one.
func (qc *QueryContext) RunInNestedTransaction(ctx context.Context, fn func(ctx context.Context, qc *QueryContext) error) error {
	if !qc.IsInTransaction() {
		return qc.runInNewTransaction(ctx, fn)
	}

	nested, err := qc.tx.Begin(ctx)
	if err != nil {
		return err
	}
	child := &QueryContext{transactor: qc.transactor, tx: nested, logger: qc.logger}

	defer func() {
		if p := recover(); p != nil {
			_ = nested.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, child); err != nil {
		if rbErr := nested.Rollback(ctx); rbErr != nil {
			qc.logger.ErrorContext(ctx, "nested transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := nested.Commit(ctx); err != nil {
		return err
	}

	invalidations, postCommit := child.drain()
	qc.mu.Lock()
	qc.invalidations = append(qc.invalidations, invalidations...)
	qc.postCommit = append(qc.postCommit, postCommit...)
	qc.mu.Unlock()
	return nil
}

func (qc *QueryContext) runInNewTransaction(ctx context.Context, fn func(ctx context.Context, qc *QueryContext) error) error {
	if qc.transactor == nil {
		return fmt.Errorf("store: query context has no transactor")
	}

	tx, err := qc.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	child := &QueryContext{transactor: qc.transactor, tx: tx, logger: qc.logger}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, child); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			qc.logger.ErrorContext(ctx, "transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	child.runCallbacks(ctx)
	return nil
}

// AppendPostCommitInvalidationCallback registers cache invalidation work for
// after the outermost commit. Invalidations run before other post commit
// callbacks. Outside a transaction cb runs immediately.
func (qc *QueryContext) AppendPostCommitInvalidationCallback(ctx context.Context, cb Callback) {
	if !qc.IsInTransaction() {
		qc.run(ctx, "post commit invalidation", cb)
		return
	}
	qc.mu.Lock()
	qc.invalidations = append(qc.invalidations, cb)
	qc.mu.Unlock()
}

// AppendPostCommitCallback registers cb for after the outermost commit.
// Outside a transaction cb runs immediately.
func (qc *QueryContext) AppendPostCommitCallback(ctx context.Context, cb Callback) {
	if !qc.IsInTransaction() {
		qc.run(ctx, "post commit callback", cb)
		return
	}
	qc.mu.Lock()
	qc.postCommit = append(qc.postCommit, cb)
	qc.mu.Unlock()
}

func (qc *QueryContext) drain() ([]Callback, []Callback) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	invalidations, postCommit := qc.invalidations, qc.postCommit
	qc.invalidations, qc.postCommit = nil, nil
	return invalidations, postCommit
}

func (qc *QueryContext) runCallbacks(ctx context.Context) {
	invalidations, postCommit := qc.drain()
	for _, cb := range invalidations {
		qc.run(ctx, "post commit invalidation", cb)
	}
	for _, cb := range postCommit {
		qc.run(ctx, "post commit callback", cb)
	}
}

// The transaction has already committed, so failures can only be reported.
func (qc *QueryContext) run(ctx context.Context, what string, cb Callback) {
	if err := cb(ctx); err != nil {
		qc.logger.ErrorContext(ctx, what+" failed", "error", err)
	}
}
