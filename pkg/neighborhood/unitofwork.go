package neighborhood

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/orama-network/profile-core/pkg/rqlite"
)

// NeighborLock and NeighborhoodActionLock are the two named locks the
// reconciler coordinates through. Other components of the profile server
// share this registry, so the acquisition order below is load-bearing: it
// must always be NeighborLock before NeighborhoodActionLock.
const (
	NeighborLock          rqlite.LockName = "NeighborLock"
	NeighborhoodActionLock rqlite.LockName = "NeighborhoodActionLock"
)

var unitOfWorkTokens int64

// UnitOfWork wraps a single database transaction together with the pair of
// named locks the reconciler must hold while mutating the Neighbor and
// NeighborhoodAction tables.
type UnitOfWork struct {
	db       *sql.DB
	registry *rqlite.LockRegistry
	token    int64

	tx      *sql.Tx
	lockSet *rqlite.LockSet
}

// NewUnitOfWork creates a UnitOfWork bound to db, coordinating through
// registry. registry must have been constructed with NeighborLock ordered
// before NeighborhoodActionLock (see pkg/node wiring).
func NewUnitOfWork(db *sql.DB, registry *rqlite.LockRegistry) *UnitOfWork {
	return &UnitOfWork{db: db, registry: registry}
}

// BeginTransactionWithLock acquires NeighborLock and NeighborhoodActionLock,
// in that order, then starts a database transaction. It blocks until both
// locks are held or ctx is cancelled.
func (u *UnitOfWork) BeginTransactionWithLock(ctx context.Context) error {
	token := atomic.AddInt64(&unitOfWorkTokens, 1)
	lockSet, err := u.registry.AcquireOrdered(ctx, token, NeighborLock, NeighborhoodActionLock)
	if err != nil {
		return fmt.Errorf("acquire locks: %w", err)
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		lockSet.Release()
		return fmt.Errorf("begin transaction: %w", err)
	}

	u.token = token
	u.lockSet = lockSet
	u.tx = tx
	return nil
}

// Neighbors returns a NeighborRepository bound to this unit of work's
// transaction. Only valid between BeginTransactionWithLock and
// Commit/Rollback.
func (u *UnitOfWork) Neighbors() NeighborRepository {
	return NewNeighborRepository(u.tx)
}

// Actions returns a NeighborhoodActionRepository bound to this unit of
// work's transaction. Only valid between BeginTransactionWithLock and
// Commit/Rollback.
func (u *UnitOfWork) Actions() NeighborhoodActionRepository {
	return NewNeighborhoodActionRepository(u.tx)
}

// Save is a no-op here: every repository write executes immediately against
// the open transaction rather than being buffered in a change tracker. It
// exists so callers can follow the source's save-then-commit shape without
// caring which ORM style is underneath.
func (u *UnitOfWork) Save() error {
	return nil
}

// Commit commits the transaction. The locks are not released here; call
// ReleaseLock once the caller is done observing post-commit state.
func (u *UnitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction. Safe to call after a failed Commit.
func (u *UnitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// ReleaseLock releases the lock pair acquired by BeginTransactionWithLock.
// Must be called exactly once after Commit or Rollback, even on error paths.
func (u *UnitOfWork) ReleaseLock() {
	if u.lockSet != nil {
		u.lockSet.Release()
		u.lockSet = nil
	}
}
