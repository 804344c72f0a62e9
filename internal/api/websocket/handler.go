package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kubilitics/kubilitics-knative/internal/models"
	"github.com/kubilitics/kubilitics-knative/internal/pkg/validate"
)

// SnapshotFunc returns the current merged topology of a namespace.
type SnapshotFunc func(ctx context.Context, namespace string) (*models.Model, error)

// Handler upgrades GET /ws/topology?namespace= requests.
type Handler struct {
	hub      *Hub
	snapshot SnapshotFunc
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler returns a handler registering clients with hub. snapshot, if
// set, provides the first message sent after connecting. allowedOrigins
// containing "*" accepts any origin.
func NewHandler(hub *Hub, snapshot SnapshotFunc, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		hub:      hub,
		snapshot: snapshot,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeWS handles a websocket connection request.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if !validate.Namespace(namespace) {
		http.Error(w, "invalid namespace", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h.hub, conn, uuid.NewString(), namespace, h.logger)
	if h.snapshot != nil {
		if model, err := h.snapshot(r.Context(), namespace); err == nil {
			if data, err := json.Marshal(Message{Type: MessageTypeTopologyUpdate, Namespace: namespace, Topology: model, Timestamp: time.Now().UTC()}); err == nil {
				c.send <- data
			}
		} else {
			h.logger.Warn("initial topology failed", "namespace", namespace, "error", err)
		}
	}

	select {
	case h.hub.register <- c:
	case <-h.hub.ctx.Done():
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
	h.logger.Debug("websocket client connected", "client", c.id, "namespace", namespace)
}
