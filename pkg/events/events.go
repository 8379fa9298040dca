package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lowtide/lowtide/pkg/async"
	"github.com/lowtide/lowtide/pkg/errdefs"
)

// EventType represents the type of billing event
type EventType string

const (
	EventSubscriptionStarted   EventType = "subscription.started"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventPaymentSucceeded      EventType = "payment.succeeded"
	EventExecutionSucceeded    EventType = "execution.succeeded"
	EventExecutionFailed       EventType = "execution.failed"
	EventExecutionForced       EventType = "execution.forced"
	EventIntentRevoked         EventType = "intent.revoked"
)

// Event is a single billing event delivered to registered endpoints
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Endpoint is a registered event consumer
type Endpoint struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	Events    []EventType `json:"events"`
	Secret    string      `json:"secret,omitempty"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (e *Endpoint) wants(t EventType) bool {
	for _, et := range e.Events {
		if et == t {
			return true
		}
	}
	return false
}

// Publisher is the event emission interface consumed by the billing components
type Publisher interface {
	Publish(ctx context.Context, eventType EventType, data map[string]interface{})
}

// NopPublisher discards all events
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, eventType EventType, data map[string]interface{}) {}

// Dispatcher fans billing events out to registered HTTP endpoints. Failed
// deliveries are retried with exponential backoff by the retry worker.
type Dispatcher struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint

	client      *http.Client
	deliveries  *DeliveryStore
	retryWorker *RetryWorker
	log         *logrus.Logger
}

// NewDispatcher creates an event dispatcher
func NewDispatcher(log *logrus.Logger) *Dispatcher {
	deliveries := NewDeliveryStore(1000)
	d := &Dispatcher{
		endpoints:  make(map[string]*Endpoint),
		client:     &http.Client{Timeout: 10 * time.Second},
		deliveries: deliveries,
		log:        log,
	}
	d.retryWorker = NewRetryWorker(d, deliveries, NewRetryPolicy(DefaultRetryConfig()))
	return d
}

// StartRetryWorker starts background redelivery of failed events
func (d *Dispatcher) StartRetryWorker(ctx context.Context) {
	d.retryWorker.Start(ctx, 30*time.Second)
}

// StopRetryWorker stops background redelivery
func (d *Dispatcher) StopRetryWorker() {
	d.retryWorker.Stop()
}

// Register adds an event endpoint
func (d *Dispatcher) Register(endpoint *Endpoint) error {
	if endpoint.URL == "" {
		return errdefs.Validation("endpoint URL is required")
	}
	if len(endpoint.Events) == 0 {
		return errdefs.Validation("at least one event type is required")
	}

	endpoint.ID = uuid.New().String()
	endpoint.Active = true
	endpoint.CreatedAt = time.Now()
	endpoint.UpdatedAt = time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints[endpoint.ID] = endpoint
	return nil
}

// Unregister removes an endpoint
func (d *Dispatcher) Unregister(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.endpoints[id]; !ok {
		return errdefs.NotFound("endpoint %s not found", id)
	}
	delete(d.endpoints, id)
	return nil
}

// ListEndpoints returns all registered endpoints
func (d *Dispatcher) ListEndpoints() []*Endpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Endpoint, 0, len(d.endpoints))
	for _, e := range d.endpoints {
		out = append(out, e)
	}
	return out
}

// DeliveryLogs returns recent delivery attempts for an endpoint
func (d *Dispatcher) DeliveryLogs(endpointID string, limit int) []*Delivery {
	return d.deliveries.ByEndpoint(endpointID, limit)
}

// Publish fans the event out to all interested endpoints. Delivery is
// asynchronous; Publish never blocks the billing path.
func (d *Dispatcher) Publish(ctx context.Context, eventType EventType, data map[string]interface{}) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	d.mu.RLock()
	targets := make([]*Endpoint, 0, len(d.endpoints))
	for _, e := range d.endpoints {
		if e.Active && e.wants(eventType) {
			targets = append(targets, e)
		}
	}
	d.mu.RUnlock()

	for _, endpoint := range targets {
		delivery := &Delivery{
			ID:         uuid.New().String(),
			EndpointID: endpoint.ID,
			EventID:    event.ID,
			EventType:  event.Type,
			URL:        endpoint.URL,
			Status:     DeliveryPending,
			CreatedAt:  time.Now(),
		}
		d.deliveries.Add(delivery)

		endpoint, delivery := endpoint, delivery
		async.SafeGoNoError(context.WithoutCancel(ctx), 30*time.Second, "event delivery", func(ctx context.Context) {
			d.attempt(ctx, endpoint, event, delivery)
		})
	}
}

func (d *Dispatcher) attempt(ctx context.Context, endpoint *Endpoint, event *Event, delivery *Delivery) {
	delivery.Attempts++
	start := time.Now()

	err := d.send(ctx, endpoint, event)
	delivery.Duration = time.Since(start)

	if err != nil {
		policy := NewRetryPolicy(DefaultRetryConfig())
		delivery.Error = err.Error()
		if policy.ShouldRetry(delivery.Attempts, err) {
			delivery.Status = DeliveryRetrying
			next := policy.NextRetryTime(delivery.Attempts)
			delivery.NextRetryAt = &next
		} else {
			delivery.Status = DeliveryFailed
			now := time.Now()
			delivery.CompletedAt = &now
		}
		d.log.WithError(err).WithFields(logrus.Fields{
			"endpoint": endpoint.ID,
			"event":    event.Type,
		}).Warn("Event delivery failed")
	} else {
		delivery.Status = DeliverySucceeded
		now := time.Now()
		delivery.CompletedAt = &now
	}

	d.deliveries.Update(delivery)
}

func (d *Dispatcher) send(ctx context.Context, endpoint *Endpoint, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lowtide-Event", string(event.Type))
	req.Header.Set("X-Lowtide-Event-ID", event.ID)
	req.Header.Set("X-Lowtide-Delivery", time.Now().Format(time.RFC3339))

	if endpoint.Secret != "" {
		req.Header.Set("X-Lowtide-Signature", sign(payload, endpoint.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// VerifySignature verifies an event payload signature
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(sign(payload, secret)), []byte(signature))
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
