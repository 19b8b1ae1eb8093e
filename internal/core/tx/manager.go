// Package tx is the transaction seam between the ledger services and storage.
// The postgres TxManager and the in-memory store both satisfy it.
package tx

import "context"

// Manager runs work atomically. A non-nil error from fn rolls everything back;
// a call made while ctx already carries a transaction joins it.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	InTransaction(ctx context.Context) bool
}

// ReadOnlyManager adds snapshot reads. Reconciliation and audit use it so they
// never take row locks on balances.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
