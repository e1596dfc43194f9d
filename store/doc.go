// Package store defines the contract between the entity core and its backing
// store.
//
// An Adapter runs queries against named tables and returns rows keyed by
// column. A QueryContext decides which connection those queries use: the
// root connection, or an open transaction created through a Transactor.
//
// Transactions nest. RunInTransactionIfNotInTransaction joins an enclosing
// transaction when there is one, RunInNestedTransaction opens a savepoint
// inside it. Callbacks registered with AppendPostCommitInvalidationCallback
// and AppendPostCommitCallback run only after the outermost transaction
// commits, invalidations first, and are dropped when the transaction that
// registered them rolls back.
//
// Implementations live in the bunstore (SQL through bun) and memstore
// (in-memory, journaled) subpackages.
package store
