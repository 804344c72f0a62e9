package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kubilitics/kubilitics-knative/internal/service"
)

const maxBodyBytes = 1 << 20

// Handler serves the topology API.
type Handler struct {
	topologyService service.TopologyService
}

// NewHandler creates a new HTTP handler
func NewHandler(ts service.TopologyService) *Handler {
	return &Handler{topologyService: ts}
}

// SetupRoutes registers the API routes on router.
func SetupRoutes(router *mux.Router, h *Handler) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/namespaces/{namespace}/topology", h.GetTopology).Methods(http.MethodGet)
	api.HandleFunc("/namespaces/{namespace}/topology/sinks", h.SetSink).Methods(http.MethodPost)
	api.HandleFunc("/namespaces/{namespace}/topology/subscribers", h.SetSubscriber).Methods(http.MethodPost)
	api.HandleFunc("/namespaces/{namespace}/topology/kafka-connections", h.SetKafkaConnection).Methods(http.MethodPost)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
