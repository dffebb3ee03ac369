package neighborhood

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := InitSchema(context.Background(), db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func TestNeighborRepositoryInsertGetCount(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewNeighborRepository(db)

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty table, got %d", count)
	}

	id := make([]byte, IdentifierLength)
	id[0] = 0xAA
	n := &Neighbor{
		NeighborID:        id,
		IPAddress:         "192.0.2.1",
		PrimaryPort:       5000,
		LocationLatitude:  1000,
		LocationLongitude: 2000,
	}
	if err := repo.Insert(ctx, n); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, found, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected to find inserted neighbor")
	}
	if got.IPAddress != "192.0.2.1" || got.PrimaryPort != 5000 {
		t.Fatalf("unexpected neighbor: %+v", got)
	}
	if got.SRNeighborPort != nil {
		t.Fatalf("expected nil sr_neighbor_port, got %v", *got.SRNeighborPort)
	}

	count, err = repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 after insert, got %d", count)
	}
}

func TestNeighborRepositoryUpdateClearsSRPort(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewNeighborRepository(db)

	id := make([]byte, IdentifierLength)
	id[0] = 0xBB
	srPort := 7000
	n := &Neighbor{
		NeighborID:        id,
		IPAddress:         "192.0.2.2",
		PrimaryPort:       5001,
		SRNeighborPort:    &srPort,
		LocationLatitude:  0,
		LocationLongitude: 0,
	}
	if err := repo.Insert(ctx, n); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n.PrimaryPort = 5002
	n.SRNeighborPort = nil
	now := time.Now().UTC()
	n.LastRefreshTime = &now
	if err := repo.Update(ctx, n); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, found, err := repo.Get(ctx, id)
	if err != nil || !found {
		t.Fatalf("get: err=%v found=%v", err, found)
	}
	if got.PrimaryPort != 5002 {
		t.Fatalf("expected updated port, got %d", got.PrimaryPort)
	}
	if got.SRNeighborPort != nil {
		t.Fatalf("expected sr_neighbor_port cleared, got %v", *got.SRNeighborPort)
	}
	if got.LastRefreshTime == nil {
		t.Fatal("expected last_refresh_time to be set")
	}
}

func TestNeighborRepositoryGetMissing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewNeighborRepository(db)

	_, found, err := repo.Get(ctx, make([]byte, IdentifierLength))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatal("expected not found on empty table")
	}
}

func TestNeighborhoodActionRepositoryInsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewNeighborhoodActionRepository(db)

	now := time.Now().UTC()
	action := &NeighborhoodAction{
		ServerID:     make([]byte, IdentifierLength),
		Type:         ActionAddNeighbor,
		Timestamp:    now,
		ExecuteAfter: now.Add(5 * time.Second),
	}
	if err := repo.Insert(ctx, action); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var count int
	row := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM neighborhood_actions`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 action row, got %d", count)
	}
}
