package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lowtide/lowtide/pkg/auth"
	"github.com/lowtide/lowtide/pkg/config"
	"github.com/lowtide/lowtide/pkg/httputil"
	"github.com/lowtide/lowtide/pkg/middleware"
)

// AdminHandlers handles operator administration HTTP requests: runtime
// option tuning, API key management and the audit trail.
type AdminHandlers struct {
	options *config.Options
	keyring *auth.Keyring
	audit   *auth.AuditTrail
}

// NewAdminHandlers creates a new AdminHandlers
func NewAdminHandlers(options *config.Options, keyring *auth.Keyring, audit *auth.AuditTrail) *AdminHandlers {
	return &AdminHandlers{options: options, keyring: keyring, audit: audit}
}

// RegisterRoutes registers admin routes, all operator-only
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	operator := func(fn http.HandlerFunc) http.Handler {
		return middleware.RequireOperator(fn)
	}

	router.Handle("/admin/options", operator(h.GetOptions)).Methods("GET")
	router.Handle("/admin/options", operator(h.UpdateOptions)).Methods("PUT")

	router.Handle("/admin/keys", operator(h.IssueKey)).Methods("POST")
	router.Handle("/admin/keys/{subject}", operator(h.ListKeys)).Methods("GET")
	router.Handle("/admin/keys/{subject}/{prefix}", operator(h.RevokeKey)).Methods("DELETE")

	router.Handle("/admin/audit", operator(h.AuditLog)).Methods("GET")
}

// GetOptions handles GET /admin/options
func (h *AdminHandlers) GetOptions(w http.ResponseWriter, r *http.Request) {
	if h.options == nil {
		httputil.WriteServiceUnavailable(w, "runtime options not configured")
		return
	}
	httputil.WriteSuccess(w, h.options.Snapshot())
}

// UpdateOptions handles PUT /admin/options
func (h *AdminHandlers) UpdateOptions(w http.ResponseWriter, r *http.Request) {
	if h.options == nil {
		httputil.WriteServiceUnavailable(w, "runtime options not configured")
		return
	}

	var values config.OptionValues
	if !httputil.ParseJSONOrError(w, r, &values) {
		return
	}

	if err := h.options.Update(values); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	identity := middleware.GetIdentity(r)
	subject := ""
	if identity != nil {
		subject = identity.Subject
	}
	h.audit.RecordRequest(r, subject, auth.ActionConfigUpdate, "options", auth.StatusSuccess,
		fmt.Sprintf("max_gas_price=%d optimal=%d auto=%t", values.MaxGasPrice, values.OptimalGasPrice, values.AutoExecution))

	httputil.WriteSuccess(w, h.options.Snapshot())
}

type issueKeyRequest struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

type issueKeyResponse struct {
	// Key is the plaintext API key, returned exactly once at issue time.
	Key     string       `json:"key"`
	Details *auth.APIKey `json:"details"`
}

// IssueKey handles POST /admin/keys
func (h *AdminHandlers) IssueKey(w http.ResponseWriter, r *http.Request) {
	var req issueKeyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role := auth.Role(req.Role)
	if req.Role == "" {
		role = auth.RoleSubscriber
	}

	key, details, err := h.keyring.Issue(req.Subject, role)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	identity := middleware.GetIdentity(r)
	issuer := ""
	if identity != nil {
		issuer = identity.Subject
	}
	h.audit.RecordRequest(r, issuer, auth.ActionKeyIssue, req.Subject, auth.StatusSuccess,
		fmt.Sprintf("prefix=%s role=%s", details.Prefix, details.Role))

	httputil.WriteCreated(w, issueKeyResponse{Key: key, Details: details})
}

// ListKeys handles GET /admin/keys/{subject}
func (h *AdminHandlers) ListKeys(w http.ResponseWriter, r *http.Request) {
	subject, ok := httputil.ParsePathStringOrError(w, r, "subject")
	if !ok {
		return
	}
	httputil.WriteSuccess(w, h.keyring.ListFor(subject))
}

// RevokeKey handles DELETE /admin/keys/{subject}/{prefix}
func (h *AdminHandlers) RevokeKey(w http.ResponseWriter, r *http.Request) {
	subject, ok := httputil.ParsePathStringOrError(w, r, "subject")
	if !ok {
		return
	}
	prefix, ok := httputil.ParsePathStringOrError(w, r, "prefix")
	if !ok {
		return
	}

	if err := h.keyring.Revoke(subject, prefix); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	identity := middleware.GetIdentity(r)
	issuer := ""
	if identity != nil {
		issuer = identity.Subject
	}
	h.audit.RecordRequest(r, issuer, auth.ActionKeyRevoke, subject, auth.StatusSuccess, "prefix="+prefix)

	httputil.WriteNoContent(w)
}

// AuditLog handles GET /admin/audit?limit=
func (h *AdminHandlers) AuditLog(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil || limit <= 0 {
		httputil.WriteValidationError(w, "limit must be a positive integer")
		return
	}
	httputil.WriteSuccess(w, h.audit.Recent(limit))
}
