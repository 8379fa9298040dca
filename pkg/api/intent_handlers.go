package api

import (
	"crypto/ed25519"
	"encoding/base64"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lowtide/lowtide/pkg/auth"
	"github.com/lowtide/lowtide/pkg/events"
	"github.com/lowtide/lowtide/pkg/httputil"
	"github.com/lowtide/lowtide/pkg/intents"
	"github.com/lowtide/lowtide/pkg/middleware"
)

// KeyRegistry binds signing keys to subscribers at onboarding
type KeyRegistry interface {
	RegisterKey(subscriber string, pub ed25519.PublicKey) error
}

// IntentHandlers handles intent store HTTP requests
type IntentHandlers struct {
	intents     intents.Service
	signingKeys KeyRegistry
	audit       *auth.AuditTrail
	publisher   events.Publisher
}

// NewIntentHandlers creates a new IntentHandlers
func NewIntentHandlers(intentSvc intents.Service, signingKeys KeyRegistry, audit *auth.AuditTrail, publisher events.Publisher) *IntentHandlers {
	var pub events.Publisher = events.NopPublisher{}
	if publisher != nil {
		pub = publisher
	}
	return &IntentHandlers{
		intents:     intentSvc,
		signingKeys: signingKeys,
		audit:       audit,
		publisher:   pub,
	}
}

// RegisterRoutes registers intent routes
func (h *IntentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/intents", h.CreateIntent).Methods("POST")
	router.HandleFunc("/intents/keys", h.RegisterSigningKey).Methods("POST")

	router.Handle("/intents/cleanup", middleware.RequireOperator(http.HandlerFunc(h.CleanupExpired))).Methods("POST")

	selfOrOp := middleware.RequireSelfOrOperator("subscriber")
	router.Handle("/intents/{subscriber}", selfOrOp(http.HandlerFunc(h.GetIntent))).Methods("GET")
	router.Handle("/intents/{subscriber}", selfOrOp(http.HandlerFunc(h.RevokeIntent))).Methods("DELETE")
	router.Handle("/intents/{subscriber}/verify", selfOrOp(http.HandlerFunc(h.VerifyIntent))).Methods("POST")
}

// CreateIntent handles POST /intents
func (h *IntentHandlers) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req intents.CreateIntentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	identity := middleware.GetIdentity(r)
	if !identity.CanActFor(req.Subscriber) {
		httputil.WriteForbidden(w, "cannot submit an intent for another subscriber")
		return
	}

	intent, err := h.intents.CreateIntent(r.Context(), &req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.RecordRequest(r, identity.Subject, auth.ActionIntentSubmit, "intent/"+req.Subscriber, auth.StatusSuccess, "")
	}

	httputil.WriteCreated(w, intent)
}

type registerKeyRequest struct {
	Subscriber string `json:"subscriber"`
	PublicKey  string `json:"public_key"` // base64
}

// RegisterSigningKey handles POST /intents/keys
func (h *IntentHandlers) RegisterSigningKey(w http.ResponseWriter, r *http.Request) {
	if h.signingKeys == nil {
		httputil.WriteServiceUnavailable(w, "signing key registration is not enabled")
		return
	}

	var req registerKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	identity := middleware.GetIdentity(r)
	if !identity.CanActFor(req.Subscriber) {
		httputil.WriteForbidden(w, "cannot register a key for another subscriber")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		httputil.WriteValidationError(w, "public_key must be base64 encoded")
		return
	}

	if err := h.signingKeys.RegisterKey(req.Subscriber, ed25519.PublicKey(raw)); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]string{"subscriber": req.Subscriber})
}

// GetIntent handles GET /intents/{subscriber}
func (h *IntentHandlers) GetIntent(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	intent, err := h.intents.GetIntent(r.Context(), subscriber)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, intent)
}

type verifyIntentRequest struct {
	Signature string `json:"signature"` // base64
}

// VerifyIntent handles POST /intents/{subscriber}/verify
func (h *IntentHandlers) VerifyIntent(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	var req verifyIntentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		httputil.WriteValidationError(w, "signature must be base64 encoded")
		return
	}

	if err := h.intents.VerifyIntent(r.Context(), subscriber, sig); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "intent verified", nil)
}

type cleanupRequest struct {
	Subscribers []string `json:"subscribers"`
}

// CleanupExpired handles POST /intents/cleanup
func (h *IntentHandlers) CleanupExpired(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Subscribers) == 0 {
		httputil.WriteValidationError(w, "subscribers is required")
		return
	}

	revoked, err := h.intents.CleanupExpired(r.Context(), req.Subscribers)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	identity := middleware.GetIdentity(r)
	if h.audit != nil {
		h.audit.RecordRequest(r, identity.Subject, auth.ActionIntentCleanup, "intents", auth.StatusSuccess, "")
	}

	httputil.WriteSuccess(w, map[string]int{"revoked": revoked})
}

type revokeIntentRequest struct {
	Reason string `json:"reason"`
}

// RevokeIntent handles DELETE /intents/{subscriber}
func (h *IntentHandlers) RevokeIntent(w http.ResponseWriter, r *http.Request) {
	subscriber := mux.Vars(r)["subscriber"]

	var req revokeIntentRequest
	// Body is optional for revocation.
	httputil.ParseJSON(r, &req)

	if err := h.intents.Revoke(r.Context(), subscriber, req.Reason); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	identity := middleware.GetIdentity(r)
	if h.audit != nil {
		h.audit.RecordRequest(r, identity.Subject, auth.ActionIntentRevoke, "intent/"+subscriber, auth.StatusSuccess, req.Reason)
	}
	h.publisher.Publish(r.Context(), events.EventIntentRevoked, map[string]interface{}{
		"subscriber": subscriber,
		"reason":     req.Reason,
	})

	httputil.WriteSuccessMessage(w, "intent revoked", nil)
}
