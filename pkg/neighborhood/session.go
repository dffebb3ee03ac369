package neighborhood

// session.go implements the LBN Session Engine (C3): the reconnecting state
// machine described in the design as Disconnected -> Connected ->
// Registered -> InSync, followed by a receive/dispatch loop until the
// connection drops.

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/orama-network/profile-core/pkg/logging"
	"github.com/orama-network/profile-core/pkg/rqlite"
)

// Session owns the single long-running task that maintains the profile
// server's TCP relationship with the LBN node.
type Session struct {
	logger *logging.ColoredLogger

	endpoint        string
	profile         NodeProfile
	responseTimeout time.Duration

	db       *sql.DB
	registry *rqlite.LockRegistry

	reconciler *Reconciler

	shutdown *shutdownSignal
	ready    *readiness

	transport *framedTransport
	ids       *idAllocator
}

// SessionConfig collects the values Session needs from the profile server's
// configuration and identity material.
type SessionConfig struct {
	Endpoint            string
	NetworkID           []byte // sha256(public_key), 32 bytes
	ServerHost          string
	PrimaryRolePort     int
	ContactKind         ContactKind
	MaxNeighborhoodSize int
	IdentifierLength    int
	ResponseTimeout     time.Duration
}

// NewSession constructs a Session. db and registry back the reconciler's
// unit of work; processor is woken after every committing transaction.
func NewSession(logger *logging.ColoredLogger, cfg SessionConfig, db *sql.DB, registry *rqlite.LockRegistry, processor ActionProcessor) *Session {
	profile := NodeProfile{
		NodeID: cfg.NetworkID,
		Contact: Contact{
			Kind: cfg.ContactKind,
			Host: cfg.ServerHost,
			Port: cfg.PrimaryRolePort,
		},
	}
	return &Session{
		logger:          logger,
		endpoint:        cfg.Endpoint,
		profile:         profile,
		responseTimeout: cfg.ResponseTimeout,
		db:              db,
		registry:        registry,
		reconciler:      NewReconciler(logger, cfg.MaxNeighborhoodSize, cfg.IdentifierLength, processor),
		shutdown:        newShutdownSignal(),
		ready:           &readiness{},
	}
}

// Initialized reports whether the initial neighborhood fetch has ever
// committed successfully. Latched: never reverts once true.
func (s *Session) Initialized() bool {
	return s.ready.Initialized()
}

// Stop fires the shutdown signal. Run returns once the current phase
// unwinds; it does not block waiting for Run to return.
func (s *Session) Stop() {
	s.shutdown.fire()
}

// Run is the session's single long-lived task: connect, register, sync,
// dispatch, and on any exit from InSync, deregister (best-effort) and
// reconnect after the fixed delay. Returns when the shutdown signal fires.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-s.shutdown.done():
			return
		default:
		}

		if err := s.runOnce(ctx); err != nil {
			s.logger.ComponentWarn(logging.ComponentNeighborhood, "lbn session ended; will reconnect", zap.Error(err))
		}

		select {
		case <-s.shutdown.done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// runOnce drives one connection attempt through Connected, Registered,
// InSync, and the dispatch loop, returning when the connection drops for
// any reason.
func (s *Session) runOnce(ctx context.Context) error {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", s.endpoint)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	s.transport = newFramedTransport(conn)
	s.ids = newIDAllocator()
	defer func() {
		s.transport = nil
	}()

	if err := s.register(ctx); err != nil {
		_ = s.transport.close()
		return fmt.Errorf("register: %w", err)
	}

	if err := s.syncInitialNeighborhood(ctx); err != nil {
		s.deregisterBestEffort(ctx)
		_ = s.transport.close()
		return fmt.Errorf("initial sync: %w", err)
	}

	err = s.dispatchLoop(ctx)
	s.deregisterBestEffort(ctx)
	_ = s.transport.close()
	return err
}

func (s *Session) register(ctx context.Context) error {
	id := s.ids.allocate()
	req, err := buildRegisterService(id, s.profile)
	if err != nil {
		return err
	}
	if err := s.transport.writeMessage(req); err != nil {
		return fmt.Errorf("write RegisterService: %w", err)
	}

	resp, err := s.readCorrelated(id, CategoryLocalService)
	if err != nil {
		return err
	}

	var body StatusResponseBody
	if err := decodeBody(resp.Response.Body, &body); err != nil {
		return err
	}
	if body.Status != StatusOk {
		return fmt.Errorf("RegisterService rejected: status=%s", body.Status)
	}
	return nil
}

func (s *Session) syncInitialNeighborhood(ctx context.Context) error {
	id := s.ids.allocate()
	req, err := buildGetNeighbourNodesByDistanceLocal(id)
	if err != nil {
		return err
	}
	if err := s.transport.writeMessage(req); err != nil {
		return fmt.Errorf("write GetNeighbourNodesByDistanceLocal: %w", err)
	}

	resp, err := s.readCorrelated(id, CategoryLocalService)
	if err != nil {
		return err
	}

	var body GetNeighbourNodesByDistanceLocalResponseBody
	if err := decodeBody(resp.Response.Body, &body); err != nil {
		return err
	}
	if body.Status != StatusOk {
		return fmt.Errorf("GetNeighbourNodesByDistanceLocal rejected: status=%s", body.Status)
	}

	uow := NewUnitOfWork(s.db, s.registry)
	if err := s.reconciler.ApplyInitialSet(ctx, uow, body.Nodes); err != nil {
		return fmt.Errorf("apply initial set: %w", err)
	}

	s.ready.set()
	return nil
}

// readCorrelated reads frames until it finds a Response matching id and
// category, or gives up per responseTimeout. Since the session never
// pipelines requests, any Request frame encountered here would be
// unexpected during the handshake phase and is treated as a protocol
// violation.
func (s *Session) readCorrelated(id uint32, category Category) (*Message, error) {
	deadline := time.Now().Add(s.responseTimeout)
	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for response id=%d", id)
		}
		msg, err := s.transport.readMessage()
		if err != nil {
			return nil, err
		}
		if msg.Response != nil {
			if correlates(msg, id, category) {
				return msg, nil
			}
			return nil, fmt.Errorf("%w: unmatched response id=%d", ErrProtocolViolation, msg.ID)
		}
		return nil, fmt.Errorf("%w: unexpected request during handshake", ErrProtocolViolation)
	}
}

// dispatchLoop reads frames until EOF, shutdown, or a protocol violation.
func (s *Session) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-s.shutdown.done():
			return nil
		default:
		}

		msg, err := s.transport.readMessage()
		if err != nil {
			return err
		}

		if msg.Response != nil {
			// A response with no in-flight request to match is always a
			// protocol violation; the session never pipelines requests.
			s.sendProtocolViolation(msg.ID)
			return fmt.Errorf("%w: unsolicited response id=%d", ErrProtocolViolation, msg.ID)
		}

		if msg.Request == nil {
			s.sendProtocolViolation(ProtocolViolationID)
			return fmt.Errorf("%w: message with neither request nor response", ErrProtocolViolation)
		}

		if err := s.dispatchRequest(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *Session) dispatchRequest(ctx context.Context, msg *Message) error {
	if msg.Request.Category != CategoryLocalService || msg.Request.Kind != KindNeighbourhoodChangedNotification {
		s.logger.ComponentError(logging.ComponentNeighborhood, "unexpected request kind from lbn node",
			zap.String("category", string(msg.Request.Category)), zap.String("kind", string(msg.Request.Kind)))
		s.sendProtocolViolation(msg.ID)
		return fmt.Errorf("%w: unexpected request kind %s/%s", ErrProtocolViolation, msg.Request.Category, msg.Request.Kind)
	}

	var body NeighbourhoodChangedNotificationBody
	if err := decodeBody(msg.Request.Body, &body); err != nil {
		s.sendProtocolViolation(msg.ID)
		return err
	}

	uow := NewUnitOfWork(s.db, s.registry)
	success, err := s.reconciler.ApplyChangeBatch(ctx, uow, body.Changes)
	if err != nil {
		s.logger.ComponentError(logging.ComponentNeighborhood, "change batch failed; dropping session for reconnect+replay",
			zap.Error(err))
		resp, buildErr := buildErrorInternal(msg.ID)
		if buildErr == nil {
			_ = s.transport.writeMessage(resp)
		}
		return err
	}
	if !success {
		resp, buildErr := buildErrorInternal(msg.ID)
		if buildErr == nil {
			_ = s.transport.writeMessage(resp)
		}
		return fmt.Errorf("change batch did not succeed")
	}

	resp, err := buildNeighbourhoodChangedNotificationResponse(msg.ID)
	if err != nil {
		return err
	}
	if err := s.transport.writeMessage(resp); err != nil {
		return fmt.Errorf("write NeighbourhoodChangedNotificationResponse: %w", err)
	}
	return nil
}

func (s *Session) sendProtocolViolation(id uint32) {
	resp, err := buildErrorProtocolViolation(id)
	if err != nil {
		return
	}
	_ = s.transport.writeMessage(resp)
}

// deregisterBestEffort sends DeregisterService and waits briefly for its
// acknowledgement. Failures are logged, never raised: the design requires
// this to be best-effort on every exit from InSync.
func (s *Session) deregisterBestEffort(ctx context.Context) {
	if s.transport == nil {
		return
	}
	id := s.ids.allocate()
	req, err := buildDeregisterService(id)
	if err != nil {
		return
	}
	if err := s.transport.writeMessage(req); err != nil {
		s.logger.ComponentWarn(logging.ComponentNeighborhood, "deregister write failed", zap.Error(err))
		return
	}
	if _, err := s.readCorrelated(id, CategoryLocalService); err != nil {
		s.logger.ComponentWarn(logging.ComponentNeighborhood, "deregister ack not observed", zap.Error(err))
	}
}
