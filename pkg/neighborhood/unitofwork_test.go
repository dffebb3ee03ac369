package neighborhood

import (
	"context"
	"testing"

	"github.com/orama-network/profile-core/pkg/rqlite"
)

func newTestRegistry() *rqlite.LockRegistry {
	return rqlite.NewLockRegistry(NeighborLock, NeighborhoodActionLock)
}

func TestUnitOfWorkCommitPersists(t *testing.T) {
	db := openTestDB(t)
	uow := NewUnitOfWork(db, newTestRegistry())

	ctx := context.Background()
	if err := uow.BeginTransactionWithLock(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}

	id := make([]byte, IdentifierLength)
	id[0] = 0x01
	if err := uow.Neighbors().Insert(ctx, &Neighbor{NeighborID: id, IPAddress: "10.0.0.1", PrimaryPort: 1}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := uow.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	uow.ReleaseLock()

	count, err := NewNeighborRepository(db).Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected commit to persist insert, got count=%d", count)
	}
}

func TestUnitOfWorkRollbackDiscards(t *testing.T) {
	db := openTestDB(t)
	uow := NewUnitOfWork(db, newTestRegistry())
	ctx := context.Background()

	if err := uow.BeginTransactionWithLock(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	id := make([]byte, IdentifierLength)
	id[0] = 0x02
	if err := uow.Neighbors().Insert(ctx, &Neighbor{NeighborID: id, IPAddress: "10.0.0.2", PrimaryPort: 2}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := uow.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	uow.ReleaseLock()

	count, err := NewNeighborRepository(db).Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard insert, got count=%d", count)
	}
}

func TestUnitOfWorkLocksReleasedForNextCaller(t *testing.T) {
	db := openTestDB(t)
	registry := newTestRegistry()
	ctx := context.Background()

	first := NewUnitOfWork(db, registry)
	if err := first.BeginTransactionWithLock(ctx); err != nil {
		t.Fatalf("begin first: %v", err)
	}
	if err := first.Commit(); err != nil {
		t.Fatalf("commit first: %v", err)
	}
	first.ReleaseLock()

	second := NewUnitOfWork(db, registry)
	if err := second.BeginTransactionWithLock(ctx); err != nil {
		t.Fatalf("begin second: %v", err)
	}
	if err := second.Commit(); err != nil {
		t.Fatalf("commit second: %v", err)
	}
	second.ReleaseLock()
}
