package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubilitics/kubilitics-knative/internal/service"
)

// GetTopology handles GET /api/v1/namespaces/{namespace}/topology?domain=
func (h *Handler) GetTopology(w http.ResponseWriter, r *http.Request) {
	namespace := mux.Vars(r)["namespace"]
	domain, err := service.ParseDomain(r.URL.Query().Get("domain"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	model, err := h.topologyService.GetTopology(r.Context(), namespace, domain)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, model)
}

type linkFunc func(ctx context.Context, namespace string, req service.LinkRequest) (*unstructured.Unstructured, error)

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request, link linkFunc) {
	var req service.LinkRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}

	updated, err := link(r.Context(), mux.Vars(r)["namespace"], req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated.Object)
}

// SetSink handles POST .../topology/sinks: points an event source at a target or URI.
func (h *Handler) SetSink(w http.ResponseWriter, r *http.Request) {
	h.handleLink(w, r, h.topologyService.SetSink)
}

// SetSubscriber handles POST .../topology/subscribers: rewires a Trigger or Subscription.
func (h *Handler) SetSubscriber(w http.ResponseWriter, r *http.Request) {
	h.handleLink(w, r, h.topologyService.SetSubscriber)
}

// SetKafkaConnection handles POST .../topology/kafka-connections.
func (h *Handler) SetKafkaConnection(w http.ResponseWriter, r *http.Request) {
	h.handleLink(w, r, h.topologyService.SetKafkaConnection)
}
