package neighborhood

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// sqlExecutor is satisfied by both *sql.DB and *sql.Tx. The repositories
// below are always bound to a *sql.Tx in practice (the reconciler never
// reads or writes outside a unit of work), but keeping the dependency this
// narrow makes them trivially testable against a bare *sql.DB too.
type sqlExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NeighborRepository is the persistence contract the reconciler uses for the
// Neighbor table. Hand-rolled over database/sql rather than built on the
// generic rqlite Repository[T]; the nullable columns (sr_neighbor_port,
// last_refresh_time) are read into pointer fields here.
type NeighborRepository interface {
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, neighborID []byte) (*Neighbor, bool, error)
	Insert(ctx context.Context, n *Neighbor) error
	Update(ctx context.Context, n *Neighbor) error
}

// NeighborhoodActionRepository is the persistence contract for the durable
// action queue the core hands off to the Action Processor.
type NeighborhoodActionRepository interface {
	Insert(ctx context.Context, a *NeighborhoodAction) error
}

type neighborRepository struct {
	exec sqlExecutor
}

// NewNeighborRepository returns a NeighborRepository bound to exec, usually
// the *sql.Tx held by a UnitOfWork.
func NewNeighborRepository(exec sqlExecutor) NeighborRepository {
	return &neighborRepository{exec: exec}
}

func (r *neighborRepository) Count(ctx context.Context) (int, error) {
	var n int
	row := r.exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM neighbors`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count neighbors: %w", err)
	}
	return n, nil
}

func (r *neighborRepository) Get(ctx context.Context, neighborID []byte) (*Neighbor, bool, error) {
	row := r.exec.QueryRowContext(ctx, `
		SELECT neighbor_id, ip_address, primary_port, sr_neighbor_port,
		       location_latitude, location_longitude, last_refresh_time
		FROM neighbors WHERE neighbor_id = ?`, neighborID)

	n, err := scanNeighbor(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get neighbor: %w", err)
	}
	return n, true, nil
}

func (r *neighborRepository) Insert(ctx context.Context, n *Neighbor) error {
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO neighbors
			(neighbor_id, ip_address, primary_port, sr_neighbor_port,
			 location_latitude, location_longitude, last_refresh_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.NeighborID, n.IPAddress, n.PrimaryPort, nullableInt(n.SRNeighborPort),
		n.LocationLatitude, n.LocationLongitude, nullableTime(n.LastRefreshTime))
	if err != nil {
		return fmt.Errorf("insert neighbor: %w", err)
	}
	return nil
}

func (r *neighborRepository) Update(ctx context.Context, n *Neighbor) error {
	_, err := r.exec.ExecContext(ctx, `
		UPDATE neighbors SET
			ip_address = ?, primary_port = ?, sr_neighbor_port = ?,
			location_latitude = ?, location_longitude = ?, last_refresh_time = ?
		WHERE neighbor_id = ?`,
		n.IPAddress, n.PrimaryPort, nullableInt(n.SRNeighborPort),
		n.LocationLatitude, n.LocationLongitude, nullableTime(n.LastRefreshTime),
		n.NeighborID)
	if err != nil {
		return fmt.Errorf("update neighbor: %w", err)
	}
	return nil
}

type neighborhoodActionRepository struct {
	exec sqlExecutor
}

// NewNeighborhoodActionRepository returns a NeighborhoodActionRepository
// bound to exec, usually the *sql.Tx held by a UnitOfWork.
func NewNeighborhoodActionRepository(exec sqlExecutor) NeighborhoodActionRepository {
	return &neighborhoodActionRepository{exec: exec}
}

func (r *neighborhoodActionRepository) Insert(ctx context.Context, a *NeighborhoodAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.exec.ExecContext(ctx, `
		INSERT INTO neighborhood_actions
			(id, server_id, type, timestamp, execute_after, target_identity_id, additional_data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ServerID, string(a.Type), a.Timestamp, a.ExecuteAfter,
		nullableString(a.TargetIdentityID), nullableString(a.AdditionalData))
	if err != nil {
		return fmt.Errorf("insert neighborhood action: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNeighbor(row rowScanner) (*Neighbor, error) {
	var (
		n              Neighbor
		srPort         sql.NullInt64
		lastRefresh    sql.NullTime
	)
	if err := row.Scan(
		&n.NeighborID, &n.IPAddress, &n.PrimaryPort, &srPort,
		&n.LocationLatitude, &n.LocationLongitude, &lastRefresh,
	); err != nil {
		return nil, err
	}
	if srPort.Valid {
		v := int(srPort.Int64)
		n.SRNeighborPort = &v
	}
	if lastRefresh.Valid {
		t := lastRefresh.Time
		n.LastRefreshTime = &t
	}
	return &n, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
