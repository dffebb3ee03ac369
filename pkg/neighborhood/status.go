package neighborhood

// status.go exposes a read-only HTTP view of the session's lifecycle state,
// mounted on the node's dedicated neighborhood status server
// (pkg/node/neighborhood_status_server.go).

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatusResponse is the JSON body returned by the status route.
type StatusResponse struct {
	Initialized      bool `json:"initialized"`
	NeighborhoodSize int  `json:"neighborhood_size"`
}

// RegisterRoutes mounts the neighborhood core's internal status route on r.
func (s *Session) RegisterRoutes(r chi.Router) {
	r.Get("/internal/neighborhood/status", s.handleStatus)
}

func (s *Session) handleStatus(w http.ResponseWriter, r *http.Request) {
	size, err := NewNeighborRepository(s.db).Count(r.Context())
	if err != nil {
		size = -1
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(StatusResponse{
		Initialized:      s.Initialized(),
		NeighborhoodSize: size,
	})
}
