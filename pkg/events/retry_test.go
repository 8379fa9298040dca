package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig())

	assert.False(t, p.ShouldRetry(1, nil), "no retry without an error")
	assert.True(t, p.ShouldRetry(1, errors.New("boom")))
	assert.True(t, p.ShouldRetry(4, errors.New("boom")))
	assert.False(t, p.ShouldRetry(5, errors.New("boom")), "max attempts reached")
}

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	})

	assert.Equal(t, time.Second, p.NextRetryDelay(0))
	assert.Equal(t, time.Second, p.NextRetryDelay(1))
	assert.Equal(t, 2*time.Second, p.NextRetryDelay(2))
	assert.Equal(t, 4*time.Second, p.NextRetryDelay(3))
	assert.Equal(t, 8*time.Second, p.NextRetryDelay(4))

	// Capped at MaxDelay
	assert.Equal(t, 10*time.Second, p.NextRetryDelay(5))
	assert.Equal(t, 10*time.Second, p.NextRetryDelay(20))
}

func TestNewRetryPolicy_NormalizesConfig(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{})

	assert.Equal(t, 5, p.config.MaxAttempts)
	assert.Equal(t, time.Second, p.config.InitialDelay)
	assert.Equal(t, 5*time.Minute, p.config.MaxDelay)
	assert.Equal(t, 2.0, p.config.BackoffMultiplier)
}

func TestDeliveryStore_Bounded(t *testing.T) {
	s := NewDeliveryStore(10)

	for i := 0; i < 25; i++ {
		s.Add(&Delivery{
			ID:        string(rune('a' + i)),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		})
	}

	// Eviction keeps the store at or below capacity
	total := 0
	for i := 0; i < 25; i++ {
		if _, ok := s.Get(string(rune('a' + i))); ok {
			total++
		}
	}
	assert.LessOrEqual(t, total, 10)

	// Newest entries survive
	_, ok := s.Get(string(rune('a' + 24)))
	assert.True(t, ok)
}

func TestDeliveryStore_PendingRetries(t *testing.T) {
	s := NewDeliveryStore(100)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	s.Add(&Delivery{ID: "due", Status: DeliveryRetrying, NextRetryAt: &past})
	s.Add(&Delivery{ID: "not-yet", Status: DeliveryRetrying, NextRetryAt: &future})
	s.Add(&Delivery{ID: "done", Status: DeliverySucceeded})

	pending := s.PendingRetries()
	assert.Len(t, pending, 1)
	assert.Equal(t, "due", pending[0].ID)
}

func TestDeliveryStore_StatsFor(t *testing.T) {
	s := NewDeliveryStore(100)

	s.Add(&Delivery{ID: "1", EndpointID: "ep", Status: DeliverySucceeded})
	s.Add(&Delivery{ID: "2", EndpointID: "ep", Status: DeliverySucceeded})
	s.Add(&Delivery{ID: "3", EndpointID: "ep", Status: DeliveryFailed})
	s.Add(&Delivery{ID: "4", EndpointID: "ep", Status: DeliveryRetrying})
	s.Add(&Delivery{ID: "5", EndpointID: "other", Status: DeliverySucceeded})

	stats := s.StatsFor("ep")
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Retrying)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
}
