package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Common audit action constants.
const (
	ActionKeyIssue      = "key.issue"
	ActionKeyRevoke     = "key.revoke"
	ActionAuthSuccess   = "auth.success"
	ActionAuthFailure   = "auth.failure"
	ActionIntentSubmit  = "intent.submit"
	ActionIntentRevoke  = "intent.revoke"
	ActionIntentCleanup = "intent.cleanup"
	ActionSubStart      = "subscription.start"
	ActionSubCancel     = "subscription.cancel"
	ActionForceExecute  = "solver.force_execute"
	ActionConfigUpdate  = "config.update"
	ActionAccessDenied  = "access.denied"
)

// Status constants.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// AuditEntry records a security-relevant action.
type AuditEntry struct {
	Subject   string    `json:"subject,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource,omitempty"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const defaultAuditCapacity = 5000

// AuditTrail keeps a bounded in-memory record of security events and
// mirrors each entry to the structured log.
type AuditTrail struct {
	log *logrus.Logger

	mu      sync.Mutex
	entries []AuditEntry
	max     int
}

// NewAuditTrail creates an audit trail. A nil logger uses the standard one.
func NewAuditTrail(log *logrus.Logger) *AuditTrail {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuditTrail{log: log, max: defaultAuditCapacity}
}

// Record appends an entry to the trail.
func (at *AuditTrail) Record(entry AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	at.mu.Lock()
	at.entries = append(at.entries, entry)
	if len(at.entries) > at.max {
		// Drop the oldest tenth so eviction is not per-append.
		drop := at.max / 10
		at.entries = append(at.entries[:0], at.entries[drop:]...)
	}
	at.mu.Unlock()

	at.log.WithFields(logrus.Fields{
		"subject":  entry.Subject,
		"action":   entry.Action,
		"resource": entry.Resource,
		"status":   entry.Status,
		"ip":       entry.IPAddress,
	}).Info("audit event")
}

// RecordRequest records an entry enriched with request metadata.
func (at *AuditTrail) RecordRequest(r *http.Request, subject, action, resource, status, detail string) {
	at.Record(AuditEntry{
		Subject:   subject,
		Action:    action,
		Resource:  resource,
		Status:    status,
		Detail:    detail,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
}

// Recent returns up to limit entries, newest first.
func (at *AuditTrail) Recent(limit int) []AuditEntry {
	at.mu.Lock()
	defer at.mu.Unlock()

	if limit <= 0 || limit > len(at.entries) {
		limit = len(at.entries)
	}

	out := make([]AuditEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = at.entries[len(at.entries)-1-i]
	}
	return out
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
