package events

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/lowtide/lowtide/pkg/async"
)

// retryConcurrency bounds concurrent redelivery attempts per pass
const retryConcurrency = 4

// RetryConfig configures redelivery behavior
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default redelivery configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff for event redelivery
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, normalizing out-of-range settings
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Minute
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = 2.0
	}
	return &RetryPolicy{config: config}
}

// ShouldRetry reports whether another delivery attempt should be made
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay returns the backoff before the next attempt
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// NextRetryTime returns when the next attempt should occur
func (p *RetryPolicy) NextRetryTime(attempts int) time.Time {
	return time.Now().Add(p.NextRetryDelay(attempts))
}

// RetryWorker periodically redelivers failed events
type RetryWorker struct {
	dispatcher *Dispatcher
	deliveries *DeliveryStore
	policy     *RetryPolicy
	stopCh     chan struct{}
	stopOnce   sync.Once
	ticker     *time.Ticker
}

// NewRetryWorker creates a retry worker
func NewRetryWorker(dispatcher *Dispatcher, deliveries *DeliveryStore, policy *RetryPolicy) *RetryWorker {
	return &RetryWorker{
		dispatcher: dispatcher,
		deliveries: deliveries,
		policy:     policy,
		stopCh:     make(chan struct{}),
	}
}

// Start begins checking for due retries every checkInterval
func (w *RetryWorker) Start(ctx context.Context, checkInterval time.Duration) {
	w.ticker = time.NewTicker(checkInterval)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-w.ticker.C:
				w.processRetries(ctx)
			}
		}
	}()
}

// Stop stops the retry worker
func (w *RetryWorker) Stop() {
	w.stopOnce.Do(func() {
		if w.ticker != nil {
			w.ticker.Stop()
		}
		close(w.stopCh)
	})
}

func (w *RetryWorker) processRetries(ctx context.Context) {
	pending := w.deliveries.PendingRetries()
	if len(pending) == 0 {
		return
	}

	// Redeliveries go out concurrently so one slow endpoint cannot hold up
	// the rest of the pass. Errors are already recorded per delivery.
	async.Batch(ctx, pending, retryConcurrency, "event redelivery", 30*time.Second,
		func(ctx context.Context, delivery *Delivery) error {
			endpoint := w.endpointFor(delivery.EndpointID)
			if endpoint == nil || !endpoint.Active {
				delivery.Status = DeliveryFailed
				delivery.Error = "endpoint removed or inactive"
				now := time.Now()
				delivery.CompletedAt = &now
				w.deliveries.Update(delivery)
				return nil
			}
			w.retryDelivery(ctx, endpoint, delivery)
			return nil
		})
}

func (w *RetryWorker) endpointFor(id string) *Endpoint {
	w.dispatcher.mu.RLock()
	defer w.dispatcher.mu.RUnlock()
	return w.dispatcher.endpoints[id]
}

func (w *RetryWorker) retryDelivery(ctx context.Context, endpoint *Endpoint, delivery *Delivery) {
	delivery.Attempts++

	// Reconstruct the event envelope from the delivery record
	event := &Event{
		ID:        delivery.EventID,
		Type:      delivery.EventType,
		Timestamp: delivery.CreatedAt,
		Data:      make(map[string]interface{}),
	}

	start := time.Now()
	err := w.dispatcher.send(ctx, endpoint, event)
	delivery.Duration = time.Since(start)

	if err != nil {
		delivery.Error = err.Error()
		if w.policy.ShouldRetry(delivery.Attempts, err) {
			delivery.Status = DeliveryRetrying
			next := w.policy.NextRetryTime(delivery.Attempts)
			delivery.NextRetryAt = &next
		} else {
			delivery.Status = DeliveryFailed
			now := time.Now()
			delivery.CompletedAt = &now
		}
	} else {
		delivery.Status = DeliverySucceeded
		delivery.Error = ""
		now := time.Now()
		delivery.CompletedAt = &now
	}

	w.deliveries.Update(delivery)
}
