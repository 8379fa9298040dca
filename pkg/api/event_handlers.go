package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lowtide/lowtide/pkg/events"
	"github.com/lowtide/lowtide/pkg/httputil"
	"github.com/lowtide/lowtide/pkg/middleware"
)

// EventHandlers handles webhook endpoint management HTTP requests
type EventHandlers struct {
	dispatcher *events.Dispatcher
}

// NewEventHandlers creates a new EventHandlers
func NewEventHandlers(dispatcher *events.Dispatcher) *EventHandlers {
	return &EventHandlers{dispatcher: dispatcher}
}

// RegisterRoutes registers webhook management routes. All of them are
// operator-only since endpoints receive events for every subscriber.
func (h *EventHandlers) RegisterRoutes(router *mux.Router) {
	operator := func(fn http.HandlerFunc) http.Handler {
		return middleware.RequireOperator(fn)
	}

	router.Handle("/webhooks", operator(h.CreateEndpoint)).Methods("POST")
	router.Handle("/webhooks", operator(h.ListEndpoints)).Methods("GET")
	router.Handle("/webhooks/{id}", operator(h.DeleteEndpoint)).Methods("DELETE")
	router.Handle("/webhooks/{id}/deliveries", operator(h.Deliveries)).Methods("GET")
}

type createEndpointRequest struct {
	URL    string             `json:"url"`
	Events []events.EventType `json:"events"`
	Secret string             `json:"secret"`
}

// CreateEndpoint handles POST /webhooks
func (h *EventHandlers) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var req createEndpointRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	endpoint := &events.Endpoint{
		URL:    req.URL,
		Events: req.Events,
		Secret: req.Secret,
	}
	if err := h.dispatcher.Register(endpoint); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, endpoint)
}

// ListEndpoints handles GET /webhooks
func (h *EventHandlers) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.dispatcher.ListEndpoints())
}

// DeleteEndpoint handles DELETE /webhooks/{id}
func (h *EventHandlers) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.dispatcher.Unregister(id); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// Deliveries handles GET /webhooks/{id}/deliveries?limit=
func (h *EventHandlers) Deliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil || limit <= 0 {
		httputil.WriteValidationError(w, "limit must be a positive integer")
		return
	}

	httputil.WriteSuccess(w, h.dispatcher.DeliveryLogs(id, limit))
}
