package neighborhood

import (
	"context"
	"testing"
	"time"

	"github.com/orama-network/profile-core/pkg/logging"
)

type countingProcessor struct {
	signals int
}

func (p *countingProcessor) Signal() { p.signals++ }

func newTestReconciler(t *testing.T, maxSize int, processor ActionProcessor) *Reconciler {
	t.Helper()
	logger, err := logging.NewColoredLogger(logging.ComponentNeighborhood, false)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	return NewReconciler(logger, maxSize, IdentifierLength, processor)
}

func nodeInfo(idByte byte, host string, port int, lat, lon int64) NodeInfo {
	id := make([]byte, IdentifierLength)
	id[0] = idByte
	return NodeInfo{
		Profile: NodeProfile{
			NodeID:  id,
			Contact: Contact{Kind: ContactIPv4, Host: host, Port: port},
		},
		Location: Location{Latitude: lat, Longitude: lon},
	}
}

// S1: an empty initial set commits cleanly with nothing inserted.
func TestApplyInitialSetEmpty(t *testing.T) {
	db := openTestDB(t)
	processor := &countingProcessor{}
	r := newTestReconciler(t, 10, processor)
	uow := NewUnitOfWork(db, newTestRegistry())

	if err := r.ApplyInitialSet(context.Background(), uow, nil); err != nil {
		t.Fatalf("apply initial set: %v", err)
	}
	if processor.signals != 0 {
		t.Fatalf("expected no signal on empty set, got %d", processor.signals)
	}

	count, err := NewNeighborRepository(db).Count(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected empty table, count=%d err=%v", count, err)
	}
}

// S2: a handful of nodes below capacity all get inserted with jittered
// AddNeighbor actions, and the processor is signaled once for the batch.
func TestApplyInitialSetBelowCapacity(t *testing.T) {
	db := openTestDB(t)
	processor := &countingProcessor{}
	r := newTestReconciler(t, 10, processor)
	uow := NewUnitOfWork(db, newTestRegistry())

	nodes := []NodeInfo{
		nodeInfo(1, "10.0.0.1", 100, 1000, 2000),
		nodeInfo(2, "10.0.0.2", 101, 1001, 2001),
		nodeInfo(3, "10.0.0.3", 102, 1002, 2002),
	}
	if err := r.ApplyInitialSet(context.Background(), uow, nodes); err != nil {
		t.Fatalf("apply initial set: %v", err)
	}
	if processor.signals != 1 {
		t.Fatalf("expected exactly one signal for the whole batch, got %d", processor.signals)
	}

	count, err := NewNeighborRepository(db).Count(context.Background())
	if err != nil || count != 3 {
		t.Fatalf("expected 3 neighbors, count=%d err=%v", count, err)
	}

	var actionCount int
	row := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM neighborhood_actions WHERE type = ?`, string(ActionAddNeighbor))
	if err := row.Scan(&actionCount); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if actionCount != 3 {
		t.Fatalf("expected 3 add-neighbor actions, got %d", actionCount)
	}
}

// S3: once the neighborhood is at capacity, further new neighbors are
// skipped but the batch still commits the ones that fit.
func TestApplyInitialSetCapacityReachedMidBatch(t *testing.T) {
	db := openTestDB(t)
	processor := &countingProcessor{}
	r := newTestReconciler(t, 1, processor)
	uow := NewUnitOfWork(db, newTestRegistry())

	nodes := []NodeInfo{
		nodeInfo(1, "10.0.0.1", 100, 0, 0),
		nodeInfo(2, "10.0.0.2", 101, 0, 0),
	}
	if err := r.ApplyInitialSet(context.Background(), uow, nodes); err != nil {
		t.Fatalf("apply initial set: %v", err)
	}

	count, err := NewNeighborRepository(db).Count(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected capacity cap to admit only 1 neighbor, count=%d err=%v", count, err)
	}
}

// S4: re-registering an existing neighbor with a changed primary port
// clears sr_neighbor_port and always refreshes last_refresh_time, without
// enqueuing a new action.
func TestApplyChangeBatchUpdateClearsSRPort(t *testing.T) {
	db := openTestDB(t)
	processor := &countingProcessor{}
	r := newTestReconciler(t, 10, processor)

	id := make([]byte, IdentifierLength)
	id[0] = 9
	srPort := 4000
	if err := NewNeighborRepository(db).Insert(context.Background(), &Neighbor{
		NeighborID:     id,
		IPAddress:      "10.0.0.9",
		PrimaryPort:    9000,
		SRNeighborPort: &srPort,
	}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	changes := []NeighbourhoodChange{
		{
			Kind: ChangeUpdatedNodeInfo,
			NodeInfo: &NodeInfo{
				Profile:  NodeProfile{NodeID: id, Contact: Contact{Kind: ContactIPv4, Host: "10.0.0.9", Port: 9001}},
				Location: Location{Latitude: 0, Longitude: 0},
			},
		},
	}

	uow := NewUnitOfWork(db, newTestRegistry())
	success, err := r.ApplyChangeBatch(context.Background(), uow, changes)
	if err != nil || !success {
		t.Fatalf("apply change batch: success=%v err=%v", success, err)
	}

	got, found, err := NewNeighborRepository(db).Get(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("get: err=%v found=%v", err, found)
	}
	if got.PrimaryPort != 9001 {
		t.Fatalf("expected port updated, got %d", got.PrimaryPort)
	}
	if got.SRNeighborPort != nil {
		t.Fatalf("expected sr_neighbor_port cleared on port change, got %v", *got.SRNeighborPort)
	}
	if got.LastRefreshTime == nil {
		t.Fatal("expected last_refresh_time to be set")
	}

	var actionCount int
	row := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM neighborhood_actions`)
	if err := row.Scan(&actionCount); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if actionCount != 0 {
		t.Fatalf("expected update path to enqueue no action, got %d", actionCount)
	}
}

// S5: removing an unknown neighbor id is a no-op that still commits.
func TestApplyChangeBatchRemoveUnknownIsNoOp(t *testing.T) {
	db := openTestDB(t)
	processor := &countingProcessor{}
	r := newTestReconciler(t, 10, processor)
	uow := NewUnitOfWork(db, newTestRegistry())

	unknown := make([]byte, IdentifierLength)
	unknown[0] = 0xFF
	changes := []NeighbourhoodChange{{Kind: ChangeRemovedNodeID, NodeID: unknown}}

	success, err := r.ApplyChangeBatch(context.Background(), uow, changes)
	if err != nil || !success {
		t.Fatalf("apply change batch: success=%v err=%v", success, err)
	}
	if processor.signals != 0 {
		t.Fatalf("expected no signal for a no-op removal, got %d", processor.signals)
	}
}

// Removing a known neighbor enqueues a RemoveNeighbor action with no delay
// and does not delete the row.
func TestApplyChangeBatchRemoveKnownEnqueuesAction(t *testing.T) {
	db := openTestDB(t)
	processor := &countingProcessor{}
	r := newTestReconciler(t, 10, processor)

	id := make([]byte, IdentifierLength)
	id[0] = 5
	if err := NewNeighborRepository(db).Insert(context.Background(), &Neighbor{NeighborID: id, IPAddress: "10.0.0.5", PrimaryPort: 1}); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	before := time.Now().UTC()
	uow := NewUnitOfWork(db, newTestRegistry())
	success, err := r.ApplyChangeBatch(context.Background(), uow, []NeighbourhoodChange{{Kind: ChangeRemovedNodeID, NodeID: id}})
	if err != nil || !success {
		t.Fatalf("apply change batch: success=%v err=%v", success, err)
	}
	if processor.signals != 1 {
		t.Fatalf("expected one signal for the removal, got %d", processor.signals)
	}

	_, found, err := NewNeighborRepository(db).Get(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("expected row to remain after remove action enqueued: err=%v found=%v", err, found)
	}

	var executeAfter time.Time
	row := db.QueryRowContext(context.Background(), `SELECT execute_after FROM neighborhood_actions WHERE type = ?`, string(ActionRemoveNeighbor))
	if err := row.Scan(&executeAfter); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if executeAfter.Before(before) {
		t.Fatalf("expected execute_after to be near enqueue time, got %v before %v", executeAfter, before)
	}
}

// S6: a malformed change batch rolls back entirely; nothing from the batch
// is committed.
func TestApplyChangeBatchUnknownKindRollsBackWholeBatch(t *testing.T) {
	db := openTestDB(t)
	processor := &countingProcessor{}
	r := newTestReconciler(t, 10, processor)
	uow := NewUnitOfWork(db, newTestRegistry())

	changes := []NeighbourhoodChange{
		{
			Kind: ChangeAddedNodeInfo,
			NodeInfo: &NodeInfo{
				Profile:  NodeProfile{NodeID: idWithByte(1), Contact: Contact{Kind: ContactIPv4, Host: "10.0.0.1", Port: 1}},
				Location: Location{Latitude: 0, Longitude: 0},
			},
		},
		{Kind: "SomethingElse", NodeID: idWithByte(2)},
	}

	success, err := r.ApplyChangeBatch(context.Background(), uow, changes)
	if err == nil || success {
		t.Fatalf("expected failure on unknown change kind, got success=%v err=%v", success, err)
	}

	count, err := NewNeighborRepository(db).Count(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected whole batch rolled back, count=%d err=%v", count, err)
	}
}

// Idempotent replay: applying the same change batch twice ends in the same
// state the second time (update path, no duplicate action).
func TestApplyChangeBatchIdempotentReplay(t *testing.T) {
	db := openTestDB(t)
	processor := &countingProcessor{}
	r := newTestReconciler(t, 10, processor)

	changes := []NeighbourhoodChange{
		{
			Kind: ChangeAddedNodeInfo,
			NodeInfo: &NodeInfo{
				Profile:  NodeProfile{NodeID: idWithByte(3), Contact: Contact{Kind: ContactIPv4, Host: "10.0.0.3", Port: 3}},
				Location: Location{Latitude: 0, Longitude: 0},
			},
		},
	}

	for i := 0; i < 2; i++ {
		uow := NewUnitOfWork(db, newTestRegistry())
		success, err := r.ApplyChangeBatch(context.Background(), uow, changes)
		if err != nil || !success {
			t.Fatalf("replay %d: success=%v err=%v", i, success, err)
		}
	}

	count, err := NewNeighborRepository(db).Count(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected replay to converge on a single row, count=%d err=%v", count, err)
	}

	var actionCount int
	row := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM neighborhood_actions WHERE type = ?`, string(ActionAddNeighbor))
	if err := row.Scan(&actionCount); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if actionCount != 1 {
		t.Fatalf("expected only the first replay to enqueue an add action, got %d", actionCount)
	}
}

// Validation errors (bad identifier length) are local to the item; the rest
// of the batch still commits.
func TestApplyInitialSetSkipsInvalidItemsButCommitsRest(t *testing.T) {
	db := openTestDB(t)
	processor := &countingProcessor{}
	r := newTestReconciler(t, 10, processor)
	uow := NewUnitOfWork(db, newTestRegistry())

	badID := []byte{1, 2, 3} // wrong length
	nodes := []NodeInfo{
		{
			Profile:  NodeProfile{NodeID: badID, Contact: Contact{Kind: ContactIPv4, Host: "10.0.0.1", Port: 1}},
			Location: Location{Latitude: 0, Longitude: 0},
		},
		nodeInfo(1, "10.0.0.2", 2, 0, 0),
	}

	if err := r.ApplyInitialSet(context.Background(), uow, nodes); err != nil {
		t.Fatalf("apply initial set: %v", err)
	}

	count, err := NewNeighborRepository(db).Count(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected only the valid item committed, count=%d err=%v", count, err)
	}
}

func idWithByte(b byte) []byte {
	id := make([]byte, IdentifierLength)
	id[0] = b
	return id
}
