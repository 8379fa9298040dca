package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lowtide/lowtide/pkg/auth"
	"github.com/lowtide/lowtide/pkg/gasprice"
	"github.com/lowtide/lowtide/pkg/httputil"
	"github.com/lowtide/lowtide/pkg/middleware"
	"github.com/lowtide/lowtide/pkg/solver"
)

// SolverHandlers handles execution queue HTTP requests
type SolverHandlers struct {
	queue   *solver.Queue
	monitor *gasprice.Monitor
	audit   *auth.AuditTrail
}

// NewSolverHandlers creates a new SolverHandlers
func NewSolverHandlers(queue *solver.Queue, monitor *gasprice.Monitor, audit *auth.AuditTrail) *SolverHandlers {
	return &SolverHandlers{
		queue:   queue,
		monitor: monitor,
		audit:   audit,
	}
}

// RegisterRoutes registers solver routes
func (h *SolverHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/solver/queue", h.Enqueue).Methods("POST")

	selfOrOp := middleware.RequireSelfOrOperator("subscriber")
	router.Handle("/solver/queue/{subscriber}", selfOrOp(http.HandlerFunc(h.GetEntry))).Methods("GET")
	router.Handle("/solver/queue/{subscriber}", selfOrOp(http.HandlerFunc(h.CancelEntry))).Methods("DELETE")
	router.Handle("/solver/history/{subscriber}", selfOrOp(http.HandlerFunc(h.History))).Methods("GET")

	router.Handle("/solver/queue", middleware.RequireOperator(http.HandlerFunc(h.ListEntries))).Methods("GET")
	router.Handle("/solver/queue/all", middleware.RequireOperator(http.HandlerFunc(h.CancelAll))).Methods("DELETE")
	router.Handle("/solver/drain", middleware.RequireOperator(http.HandlerFunc(h.Drain))).Methods("POST")
	router.Handle("/solver/force/{entryId}", middleware.RequireOperator(http.HandlerFunc(h.ForceExecute))).Methods("POST")
	router.Handle("/solver/stats", middleware.RequireOperator(http.HandlerFunc(h.Stats))).Methods("GET")
}

type enqueueRequest struct {
	Subscriber string `json:"subscriber"`
}

// Enqueue handles POST /solver/queue
func (h *SolverHandlers) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	identity := middleware.GetIdentity(r)
	if !identity.CanActFor(req.Subscriber) {
		httputil.WriteForbidden(w, "cannot enqueue a renewal for another subscriber")
		return
	}

	entry, err := h.queue.Enqueue(r.Context(), req.Subscriber)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, entry)
}

// ListEntries handles GET /solver/queue
func (h *SolverHandlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.queue.Entries())
}

// GetEntry handles GET /solver/queue/{subscriber}
func (h *SolverHandlers) GetEntry(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	entry, ok := h.queue.EntryFor(subscriber)
	if !ok {
		httputil.WriteNotFoundError(w, "no queued renewal for "+subscriber)
		return
	}

	httputil.WriteSuccess(w, entry)
}

// CancelEntry handles DELETE /solver/queue/{subscriber}
func (h *SolverHandlers) CancelEntry(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	if err := h.queue.Cancel(r.Context(), subscriber); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "queue entry cancelled", nil)
}

// CancelAll handles DELETE /solver/queue/all
func (h *SolverHandlers) CancelAll(w http.ResponseWriter, r *http.Request) {
	cancelled := h.queue.CancelAll(r.Context())
	httputil.WriteSuccess(w, map[string]int{"cancelled": cancelled})
}

type drainRequest struct {
	ObservedPrice *int64 `json:"observed_price,omitempty"`
}

// Drain handles POST /solver/drain. The observed price defaults to the
// monitor's latest sample when the body omits it.
func (h *SolverHandlers) Drain(w http.ResponseWriter, r *http.Request) {
	var req drainRequest
	httputil.ParseJSON(r, &req)

	var observed int64
	if req.ObservedPrice != nil {
		observed = *req.ObservedPrice
	} else {
		sample, ok := h.monitor.Latest()
		if !ok {
			httputil.WriteConflict(w, "no gas price observed yet; supply observed_price")
			return
		}
		observed = sample.Value
	}

	result, err := h.queue.Drain(r.Context(), observed)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// ForceExecute handles POST /solver/force/{entryId}
func (h *SolverHandlers) ForceExecute(w http.ResponseWriter, r *http.Request) {
	entryID := mux.Vars(r)["entryId"]

	var observed int64
	if sample, ok := h.monitor.Latest(); ok {
		observed = sample.Value
	}

	if err := h.queue.ForceExecute(r.Context(), entryID, observed); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	identity := middleware.GetIdentity(r)
	if h.audit != nil {
		h.audit.RecordRequest(r, identity.Subject, auth.ActionForceExecute, "entry/"+entryID, auth.StatusSuccess, "")
	}

	httputil.WriteSuccessMessage(w, "entry executed", nil)
}

// Stats handles GET /solver/stats
func (h *SolverHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"stats": h.queue.Stats(),
		"depth": h.queue.Depth(),
	})
}

// History handles GET /solver/history/{subscriber}
func (h *SolverHandlers) History(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	archive := h.queue.History()
	if archive == nil {
		httputil.WriteServiceUnavailable(w, "execution history is not enabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteValidationError(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := archive.BySubscriber(r.Context(), subscriber, limit)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, records)
}
