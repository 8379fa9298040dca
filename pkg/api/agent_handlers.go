package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lowtide/lowtide/pkg/agent"
	"github.com/lowtide/lowtide/pkg/httputil"
	"github.com/lowtide/lowtide/pkg/middleware"
)

// AgentHandlers handles billing agent provisioning requests
type AgentHandlers struct {
	factory *agent.Factory
}

// NewAgentHandlers creates a new AgentHandlers
func NewAgentHandlers(factory *agent.Factory) *AgentHandlers {
	return &AgentHandlers{factory: factory}
}

// RegisterRoutes registers agent routes
func (h *AgentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/agents", h.CreateAgent).Methods("POST")

	selfOrOp := middleware.RequireSelfOrOperator("subscriber")
	router.Handle("/agents/{subscriber}", selfOrOp(http.HandlerFunc(h.GetAgent))).Methods("GET")
}

type createAgentRequest struct {
	Subscriber string `json:"subscriber"`
	Salt       string `json:"salt"`
}

// CreateAgent handles POST /agents
func (h *AgentHandlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	identity := middleware.GetIdentity(r)
	if !identity.CanActFor(req.Subscriber) {
		httputil.WriteForbidden(w, "cannot provision an agent for another subscriber")
		return
	}

	address, err := h.factory.CreateAgent(r.Context(), req.Subscriber, req.Salt)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]string{
		"subscriber": req.Subscriber,
		"agent":      address,
	})
}

// GetAgent handles GET /agents/{subscriber}
func (h *AgentHandlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	address, err := h.factory.AgentAddressFor(subscriber)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{
		"subscriber": subscriber,
		"agent":      address,
	})
}
