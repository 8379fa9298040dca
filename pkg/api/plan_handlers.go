package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lowtide/lowtide/pkg/httputil"
	"github.com/lowtide/lowtide/pkg/middleware"
	"github.com/lowtide/lowtide/pkg/plans"
)

// PlanHandlers handles plan registry HTTP requests
type PlanHandlers struct {
	plans plans.Service
}

// NewPlanHandlers creates a new PlanHandlers
func NewPlanHandlers(planSvc plans.Service) *PlanHandlers {
	return &PlanHandlers{plans: planSvc}
}

// RegisterRoutes registers plan routes
func (h *PlanHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/plans", h.ListPlans).Methods("GET")
	router.HandleFunc("/plans/{id}", h.GetPlan).Methods("GET")

	router.Handle("/plans", middleware.RequireOperator(http.HandlerFunc(h.CreatePlan))).Methods("POST")
	router.Handle("/plans/{id}/pause", middleware.RequireOperator(http.HandlerFunc(h.PausePlan))).Methods("POST")
	router.Handle("/plans/{id}/resume", middleware.RequireOperator(http.HandlerFunc(h.ResumePlan))).Methods("POST")
}

// CreatePlan handles POST /plans
func (h *PlanHandlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req plans.CreatePlanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	plan, err := h.plans.CreatePlan(r.Context(), &req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, plan)
}

// ListPlans handles GET /plans
func (h *PlanHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	list, err := h.plans.ListPlans(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// GetPlan handles GET /plans/{id}
func (h *PlanHandlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	plan, err := h.plans.GetPlan(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, plan)
}

// PausePlan handles POST /plans/{id}/pause
func (h *PlanHandlers) PausePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.plans.Pause(r.Context(), id); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "plan paused", nil)
}

// ResumePlan handles POST /plans/{id}/resume
func (h *PlanHandlers) ResumePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.plans.Resume(r.Context(), id); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "plan resumed", nil)
}
