package neighborhood

// reconciler.go implements the Neighborhood Reconciler (C4): validating
// inbound LBN node descriptors, upserting Neighbor rows, enqueueing
// NeighborhoodAction work items, and enforcing the neighborhood size cap.
// Mirrors the diff-then-apply shape of the WireGuard peer sync loop, scaled
// down to a single validate-then-upsert primitive reused by both Apply
// Initial Set and Apply Change Batch.

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orama-network/profile-core/pkg/logging"
)

// ActionProcessor is the external collaborator the reconciler wakes up
// after a committing transaction. Its Signal method must be non-blocking;
// multiple pending signals collapse into one wake-up.
type ActionProcessor interface {
	Signal()
}

// Reconciler applies LBN-reported neighborhood state to the local Neighbor
// table and enqueues NeighborhoodAction work items for the Action Processor.
type Reconciler struct {
	logger              *logging.ColoredLogger
	maxNeighborhoodSize int
	identifierLength    int
	processor           ActionProcessor

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewReconciler constructs a Reconciler. maxNeighborhoodSize and
// identifierLength come from the profile server's LBN configuration.
func NewReconciler(logger *logging.ColoredLogger, maxNeighborhoodSize, identifierLength int, processor ActionProcessor) *Reconciler {
	return &Reconciler{
		logger:              logger,
		maxNeighborhoodSize: maxNeighborhoodSize,
		identifierLength:    identifierLength,
		processor:           processor,
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// upsertResult mirrors AddOrChangeNeighbor's documented return shape.
type upsertResult struct {
	err             bool
	saveDB          bool
	signalProcessor bool
	newSize         int
}

// addOrChangeNeighbor validates and upserts one neighbor descriptor within
// the caller's open transaction. current_size is threaded through the
// caller's loop and is not read back from the database on every call.
func (r *Reconciler) addOrChangeNeighbor(
	ctx context.Context,
	neighbors NeighborRepository,
	actions NeighborhoodActionRepository,
	serverID []byte, ip string, port int, lat, lon int64,
	currentSize int,
) (upsertResult, error) {
	if !validIdentifier(serverID) {
		r.logger.ComponentError(logging.ComponentNeighborhood, "rejecting neighbor descriptor: bad identifier length",
			zap.Int("got", len(serverID)), zap.Int("want", r.identifierLength))
		return upsertResult{err: true}, nil
	}
	if !validPort(port) {
		r.logger.ComponentError(logging.ComponentNeighborhood, "rejecting neighbor descriptor: port out of range",
			zap.Int("port", port))
		return upsertResult{err: true}, nil
	}
	if !validLocation(lat, lon) {
		r.logger.ComponentError(logging.ComponentNeighborhood, "rejecting neighbor descriptor: invalid location",
			zap.Int64("lat", lat), zap.Int64("lon", lon))
		return upsertResult{err: true}, nil
	}

	existing, found, err := neighbors.Get(ctx, serverID)
	if err != nil {
		return upsertResult{}, fmt.Errorf("lookup neighbor: %w", err)
	}

	if !found {
		if currentSize >= r.maxNeighborhoodSize {
			r.logger.ComponentError(logging.ComponentNeighborhood, "neighborhood at capacity; skipping new neighbor",
				zap.Int("max_neighborhood_size", r.maxNeighborhoodSize))
			return upsertResult{}, nil
		}

		newSize := currentSize + 1
		n := &Neighbor{
			NeighborID:        serverID,
			IPAddress:         ip,
			PrimaryPort:       port,
			SRNeighborPort:    nil,
			LocationLatitude:  lat,
			LocationLongitude: lon,
			LastRefreshTime:   nil,
		}
		if err := neighbors.Insert(ctx, n); err != nil {
			return upsertResult{}, fmt.Errorf("insert neighbor: %w", err)
		}

		jitter := r.addNeighborJitter(newSize)
		now := time.Now().UTC()
		action := &NeighborhoodAction{
			ServerID:     serverID,
			Type:         ActionAddNeighbor,
			Timestamp:    now,
			ExecuteAfter: now.Add(jitter),
		}
		if err := actions.Insert(ctx, action); err != nil {
			return upsertResult{}, fmt.Errorf("insert add-neighbor action: %w", err)
		}

		return upsertResult{saveDB: true, signalProcessor: true, newSize: newSize}, nil
	}

	if existing.IPAddress != ip {
		existing.IPAddress = ip
	}
	if existing.PrimaryPort != port {
		existing.PrimaryPort = port
		existing.SRNeighborPort = nil
	}
	if existing.LocationLatitude != lat {
		existing.LocationLatitude = lat
	}
	if existing.LocationLongitude != lon {
		existing.LocationLongitude = lon
	}

	now := time.Now().UTC()
	existing.LastRefreshTime = &now

	if err := neighbors.Update(ctx, existing); err != nil {
		return upsertResult{}, fmt.Errorf("update neighbor: %w", err)
	}

	return upsertResult{saveDB: true, newSize: currentSize}, nil
}

// addNeighborJitter draws the uniform(0, 3*N) second delay under the
// reconciler's own rng, guarded against concurrent callers.
func (r *Reconciler) addNeighborJitter(neighborhoodSize int) time.Duration {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return addNeighborJitter(r.rng, neighborhoodSize)
}

// ApplyInitialSet applies the full neighbor list returned by
// GetNeighbourNodesByDistanceLocal, within a single transaction holding
// NeighborLock then NeighborhoodActionLock.
func (r *Reconciler) ApplyInitialSet(ctx context.Context, uow *UnitOfWork, nodes []NodeInfo) error {
	if err := uow.BeginTransactionWithLock(ctx); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	neighbors := uow.Neighbors()
	actions := uow.Actions()

	currentSize, err := neighbors.Count(ctx)
	if err != nil {
		_ = uow.Rollback()
		uow.ReleaseLock()
		return fmt.Errorf("count neighbors: %w", err)
	}

	anySaved := false
	anySignal := false

	for _, node := range nodes {
		serverID := node.Profile.NodeID
		ip, port, err := contactHostPort(node.Profile.Contact)
		if err != nil {
			r.logger.ComponentError(logging.ComponentNeighborhood, "skipping node in initial set: invalid contact",
				zap.Error(err))
			continue
		}

		result, err := r.addOrChangeNeighbor(ctx, neighbors, actions, serverID, ip, port,
			node.Location.Latitude, node.Location.Longitude, currentSize)
		if err != nil {
			_ = uow.Rollback()
			uow.ReleaseLock()
			return fmt.Errorf("apply initial set item: %w", err)
		}
		if result.err {
			continue
		}
		if result.saveDB {
			anySaved = true
			currentSize = result.newSize
		}
		if result.signalProcessor {
			anySignal = true
		}
	}

	if err := uow.Save(); err != nil {
		_ = uow.Rollback()
		uow.ReleaseLock()
		return fmt.Errorf("save: %w", err)
	}
	if err := uow.Commit(); err != nil {
		uow.ReleaseLock()
		return fmt.Errorf("commit: %w", err)
	}
	uow.ReleaseLock()

	r.logger.ComponentInfo(logging.ComponentNeighborhood, "initial neighborhood sync complete",
		zap.Int("nodes", len(nodes)), zap.Bool("changed", anySaved))

	if anySignal {
		r.processor.Signal()
	}
	return nil
}

// ApplyChangeBatch applies an ordered list of NeighbourhoodChange entries
// within a single transaction, identical locking and commit/rollback policy
// to ApplyInitialSet. Returns success=true once the batch has committed;
// on an unrecoverable failure it returns false and a non-nil error. The
// caller picks the response sent back to the LBN node from this result.
func (r *Reconciler) ApplyChangeBatch(ctx context.Context, uow *UnitOfWork, changes []NeighbourhoodChange) (success bool, err error) {
	if err := uow.BeginTransactionWithLock(ctx); err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}

	neighbors := uow.Neighbors()
	actions := uow.Actions()

	currentSize, err := neighbors.Count(ctx)
	if err != nil {
		_ = uow.Rollback()
		uow.ReleaseLock()
		return false, fmt.Errorf("count neighbors: %w", err)
	}

	anySignal := false

	for _, change := range changes {
		switch change.Kind {
		case ChangeAddedNodeInfo, ChangeUpdatedNodeInfo:
			if change.NodeInfo == nil {
				_ = uow.Rollback()
				uow.ReleaseLock()
				return false, fmt.Errorf("change batch item missing node_info")
			}
			ip, port, err := contactHostPort(change.NodeInfo.Profile.Contact)
			if err != nil {
				_ = uow.Rollback()
				uow.ReleaseLock()
				return false, fmt.Errorf("invalid contact in change batch: %w", err)
			}
			result, err := r.addOrChangeNeighbor(ctx, neighbors, actions, change.NodeInfo.Profile.NodeID,
				ip, port, change.NodeInfo.Location.Latitude, change.NodeInfo.Location.Longitude, currentSize)
			if err != nil {
				_ = uow.Rollback()
				uow.ReleaseLock()
				return false, fmt.Errorf("apply change batch item: %w", err)
			}
			if result.err {
				continue
			}
			if result.saveDB {
				currentSize = result.newSize
			}
			if result.signalProcessor {
				anySignal = true
			}

		case ChangeRemovedNodeID:
			if !validIdentifier(change.NodeID) {
				r.logger.ComponentError(logging.ComponentNeighborhood, "rejecting remove: bad identifier length",
					zap.Int("got", len(change.NodeID)))
				continue
			}
			_, found, err := neighbors.Get(ctx, change.NodeID)
			if err != nil {
				_ = uow.Rollback()
				uow.ReleaseLock()
				return false, fmt.Errorf("lookup neighbor for removal: %w", err)
			}
			if !found {
				r.logger.ComponentInfo(logging.ComponentNeighborhood, "remove of unknown neighbor id; ignoring")
				continue
			}
			now := time.Now().UTC()
			action := &NeighborhoodAction{
				ServerID:     change.NodeID,
				Type:         ActionRemoveNeighbor,
				Timestamp:    now,
				ExecuteAfter: now,
			}
			if err := actions.Insert(ctx, action); err != nil {
				_ = uow.Rollback()
				uow.ReleaseLock()
				return false, fmt.Errorf("insert remove-neighbor action: %w", err)
			}
			anySignal = true

		default:
			_ = uow.Rollback()
			uow.ReleaseLock()
			return false, fmt.Errorf("unknown change kind %q", change.Kind)
		}
	}

	if err := uow.Save(); err != nil {
		_ = uow.Rollback()
		uow.ReleaseLock()
		return false, fmt.Errorf("save: %w", err)
	}
	if err := uow.Commit(); err != nil {
		uow.ReleaseLock()
		return false, fmt.Errorf("commit: %w", err)
	}
	uow.ReleaseLock()

	r.logger.ComponentInfo(logging.ComponentNeighborhood, "change batch applied",
		zap.Int("changes", len(changes)), zap.Bool("signaled_processor", anySignal))

	if anySignal {
		r.processor.Signal()
	}
	return true, nil
}

// contactHostPort resolves the ipv4|ipv6 contact discriminator to a
// host/port pair.
func contactHostPort(c Contact) (string, int, error) {
	switch c.Kind {
	case ContactIPv4, ContactIPv6:
		return c.Host, c.Port, nil
	default:
		return "", 0, fmt.Errorf("unknown contact kind %q", c.Kind)
	}
}
