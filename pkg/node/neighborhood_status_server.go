package node

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/orama-network/profile-core/pkg/logging"
)

// startNeighborhoodStatusServer mounts the neighborhood core's read-only
// status route on its own small chi router and starts listening on
// n.config.LBN.StatusAddr. Mirrors the teacher's HTTPGateway router setup
// (RequestID/Recoverer/Timeout middleware) scoped down to the one
// internal route this core exposes.
func (n *Node) startNeighborhoodStatusServer() error {
	if n.config.LBN.StatusAddr == "" {
		return nil
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	n.neighborhoodSession.RegisterRoutes(r)

	listener, err := net.Listen("tcp", n.config.LBN.StatusAddr)
	if err != nil {
		return err
	}

	n.neighborhoodStatusServer = &http.Server{Handler: r}

	n.logger.ComponentInfo(logging.ComponentNeighborhood, "neighborhood status server listening",
		zap.String("addr", n.config.LBN.StatusAddr))

	go func() {
		if err := n.neighborhoodStatusServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			n.logger.ComponentError(logging.ComponentNeighborhood, "neighborhood status server error", zap.Error(err))
		}
	}()

	return nil
}

func (n *Node) stopNeighborhoodStatusServer() {
	if n.neighborhoodStatusServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.neighborhoodStatusServer.Shutdown(ctx); err != nil {
		n.logger.ComponentError(logging.ComponentNeighborhood, "neighborhood status server shutdown error", zap.Error(err))
	}
}
