package events

import (
	"sort"
	"sync"
	"time"
)

// DeliveryStatus represents the status of one event delivery
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySucceeded DeliveryStatus = "succeeded"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryRetrying  DeliveryStatus = "retrying"
)

// Delivery records one delivery attempt chain for an event/endpoint pair
type Delivery struct {
	ID          string         `json:"id"`
	EndpointID  string         `json:"endpoint_id"`
	EventID     string         `json:"event_id"`
	EventType   EventType      `json:"event_type"`
	URL         string         `json:"url"`
	Status      DeliveryStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration  `json:"duration,omitempty"`
}

// DeliveryStore keeps a bounded in-memory record of delivery attempts
type DeliveryStore struct {
	mu         sync.RWMutex
	deliveries map[string]*Delivery
	maxEntries int
}

// NewDeliveryStore creates a delivery store holding at most maxEntries records
func NewDeliveryStore(maxEntries int) *DeliveryStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &DeliveryStore{
		deliveries: make(map[string]*Delivery),
		maxEntries: maxEntries,
	}
}

// Add records a delivery, evicting the oldest entries at capacity
func (s *DeliveryStore) Add(d *Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) >= s.maxEntries {
		s.evictOldest()
	}
	s.deliveries[d.ID] = d
}

// Update replaces a delivery record
func (s *DeliveryStore) Update(d *Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = d
}

// Get returns a delivery by id
func (s *DeliveryStore) Get(id string) (*Delivery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	return d, ok
}

// ByEndpoint returns deliveries for an endpoint, newest first
func (s *DeliveryStore) ByEndpoint(endpointID string, limit int) []*Delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Delivery
	for _, d := range s.deliveries {
		if d.EndpointID == endpointID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// PendingRetries returns deliveries whose retry time has arrived
func (s *DeliveryStore) PendingRetries() []*Delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var result []*Delivery
	for _, d := range s.deliveries {
		if d.Status == DeliveryRetrying && d.NextRetryAt != nil && d.NextRetryAt.Before(now) {
			result = append(result, d)
		}
	}
	return result
}

// evictOldest drops the oldest tenth of the records. Caller holds the lock.
func (s *DeliveryStore) evictOldest() {
	all := make([]*Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	evict := len(all) / 10
	if evict == 0 {
		evict = 1
	}
	for i := 0; i < evict && i < len(all); i++ {
		delete(s.deliveries, all[i].ID)
	}
}

// Stats summarizes delivery outcomes for an endpoint
type Stats struct {
	EndpointID  string  `json:"endpoint_id"`
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	Retrying    int     `json:"retrying"`
	SuccessRate float64 `json:"success_rate"`
}

// StatsFor returns delivery statistics for an endpoint
func (s *DeliveryStore) StatsFor(endpointID string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{EndpointID: endpointID}
	for _, d := range s.deliveries {
		if d.EndpointID != endpointID {
			continue
		}
		stats.Total++
		switch d.Status {
		case DeliverySucceeded:
			stats.Succeeded++
		case DeliveryFailed:
			stats.Failed++
		case DeliveryRetrying:
			stats.Retrying++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	return stats
}
