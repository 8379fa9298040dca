package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lowtide/lowtide/pkg/auth"
	"github.com/lowtide/lowtide/pkg/events"
	"github.com/lowtide/lowtide/pkg/httputil"
	"github.com/lowtide/lowtide/pkg/middleware"
	"github.com/lowtide/lowtide/pkg/solver"
	"github.com/lowtide/lowtide/pkg/subscriptions"
)

// SubscriptionHandlers handles subscription registry HTTP requests
type SubscriptionHandlers struct {
	subscriptions subscriptions.Service
	queue         *solver.Queue
	audit         *auth.AuditTrail
	publisher     events.Publisher
}

// NewSubscriptionHandlers creates a new SubscriptionHandlers
func NewSubscriptionHandlers(subSvc subscriptions.Service, queue *solver.Queue, audit *auth.AuditTrail, publisher events.Publisher) *SubscriptionHandlers {
	var pub events.Publisher = events.NopPublisher{}
	if publisher != nil {
		pub = publisher
	}
	return &SubscriptionHandlers{
		subscriptions: subSvc,
		queue:         queue,
		audit:         audit,
		publisher:     pub,
	}
}

// RegisterRoutes registers subscription routes
func (h *SubscriptionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/subscriptions", h.StartSubscription).Methods("POST")

	selfOrOp := middleware.RequireSelfOrOperator("subscriber")
	router.Handle("/subscriptions/{subscriber}", selfOrOp(http.HandlerFunc(h.GetSubscription))).Methods("GET")
	router.Handle("/subscriptions/{subscriber}", selfOrOp(http.HandlerFunc(h.CancelSubscription))).Methods("DELETE")

	router.Handle("/subscriptions", middleware.RequireOperator(http.HandlerFunc(h.ListActive))).Methods("GET")
	router.Handle("/subscriptions/{subscriber}/sponsor", middleware.RequireOperator(http.HandlerFunc(h.SponsorFees))).Methods("POST")
	router.Handle("/revenue/{asset}", middleware.RequireOperator(http.HandlerFunc(h.Revenue))).Methods("GET")
}

// StartSubscription handles POST /subscriptions
func (h *SubscriptionHandlers) StartSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptions.StartRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	identity := middleware.GetIdentity(r)
	if !identity.CanActFor(req.Subscriber) {
		httputil.WriteForbidden(w, "cannot start a subscription for another subscriber")
		return
	}

	sub, err := h.subscriptions.Start(r.Context(), &req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.RecordRequest(r, identity.Subject, auth.ActionSubStart, "subscription/"+req.Subscriber, auth.StatusSuccess, "")
	}
	h.publisher.Publish(r.Context(), events.EventSubscriptionStarted, map[string]interface{}{
		"subscriber": sub.Subscriber,
		"plan_id":    sub.PlanID,
		"agent":      sub.Agent,
	})

	httputil.WriteCreated(w, sub)
}

// GetSubscription handles GET /subscriptions/{subscriber}
func (h *SubscriptionHandlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	sub, err := h.subscriptions.Get(r.Context(), subscriber)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, sub)
}

// ListActive handles GET /subscriptions
func (h *SubscriptionHandlers) ListActive(w http.ResponseWriter, r *http.Request) {
	list, err := h.subscriptions.ListActive(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// CancelSubscription handles DELETE /subscriptions/{subscriber}
func (h *SubscriptionHandlers) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	if err := h.subscriptions.Cancel(r.Context(), subscriber); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	// Best effort: a queued renewal for a cancelled subscription would be
	// dropped at drain time anyway.
	if h.queue != nil {
		h.queue.Cancel(r.Context(), subscriber)
	}

	identity := middleware.GetIdentity(r)
	if h.audit != nil {
		h.audit.RecordRequest(r, identity.Subject, auth.ActionSubCancel, "subscription/"+subscriber, auth.StatusSuccess, "")
	}
	h.publisher.Publish(r.Context(), events.EventSubscriptionCancelled, map[string]interface{}{
		"subscriber": subscriber,
	})

	httputil.WriteSuccessMessage(w, "subscription cancelled", nil)
}

type sponsorFeesRequest struct {
	Amount int64 `json:"amount"`
}

// SponsorFees handles POST /subscriptions/{subscriber}/sponsor
func (h *SubscriptionHandlers) SponsorFees(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	var req sponsorFeesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.subscriptions.SponsorFees(r.Context(), subscriber, req.Amount); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "fees sponsored", map[string]interface{}{
		"subscriber": subscriber,
		"amount":     req.Amount,
	})
}

// Revenue handles GET /revenue/{asset}
func (h *SubscriptionHandlers) Revenue(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]

	total, err := h.subscriptions.Revenue(r.Context(), asset)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"asset":   asset,
		"revenue": total,
	})
}
