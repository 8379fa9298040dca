package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// receiver collects delivered events for assertions
type receiver struct {
	mu      sync.Mutex
	events  []Event
	headers []http.Header
	status  int
}

func (r *receiver) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		var event Event
		_ = json.Unmarshal(body, &event)

		r.mu.Lock()
		r.events = append(r.events, event)
		r.headers = append(r.headers, req.Header.Clone())
		status := r.status
		r.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (r *receiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcher_Register(t *testing.T) {
	d := NewDispatcher(testLogger())

	endpoint := &Endpoint{URL: "http://example.com/hook", Events: []EventType{EventPaymentSucceeded}}
	require.NoError(t, d.Register(endpoint))
	assert.NotEmpty(t, endpoint.ID)
	assert.True(t, endpoint.Active)
	assert.Len(t, d.ListEndpoints(), 1)
}

func TestDispatcher_Register_Invalid(t *testing.T) {
	d := NewDispatcher(testLogger())

	err := d.Register(&Endpoint{Events: []EventType{EventPaymentSucceeded}})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	err = d.Register(&Endpoint{URL: "http://example.com"})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestDispatcher_Unregister(t *testing.T) {
	d := NewDispatcher(testLogger())

	endpoint := &Endpoint{URL: "http://example.com/hook", Events: []EventType{EventPaymentSucceeded}}
	require.NoError(t, d.Register(endpoint))
	require.NoError(t, d.Unregister(endpoint.ID))
	assert.Empty(t, d.ListEndpoints())

	err := d.Unregister(endpoint.ID)
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestDispatcher_Publish(t *testing.T) {
	r := &receiver{}
	srv := httptest.NewServer(r.handler())
	defer srv.Close()

	d := NewDispatcher(testLogger())
	require.NoError(t, d.Register(&Endpoint{
		URL:    srv.URL,
		Events: []EventType{EventExecutionSucceeded},
		Secret: "topsecret",
	}))

	d.Publish(context.Background(), EventExecutionSucceeded, map[string]interface{}{
		"subscriber": "alice",
		"gas_saved":  float64(30),
	})

	waitFor(t, func() bool { return r.count() == 1 })

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, EventExecutionSucceeded, r.events[0].Type)
	assert.Equal(t, "alice", r.events[0].Data["subscriber"])
	assert.Equal(t, "execution.succeeded", r.headers[0].Get("X-Lowtide-Event"))
	assert.NotEmpty(t, r.headers[0].Get("X-Lowtide-Signature"))
}

func TestDispatcher_Publish_FiltersByEventType(t *testing.T) {
	r := &receiver{}
	srv := httptest.NewServer(r.handler())
	defer srv.Close()

	d := NewDispatcher(testLogger())
	require.NoError(t, d.Register(&Endpoint{
		URL:    srv.URL,
		Events: []EventType{EventSubscriptionCancelled},
	}))

	d.Publish(context.Background(), EventExecutionFailed, nil)
	d.Publish(context.Background(), EventSubscriptionCancelled, map[string]interface{}{"subscriber": "bob"})

	waitFor(t, func() bool { return r.count() == 1 })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, r.count())
}

func TestDispatcher_Publish_FailureRecordedForRetry(t *testing.T) {
	r := &receiver{status: http.StatusInternalServerError}
	srv := httptest.NewServer(r.handler())
	defer srv.Close()

	d := NewDispatcher(testLogger())
	endpoint := &Endpoint{URL: srv.URL, Events: []EventType{EventExecutionFailed}}
	require.NoError(t, d.Register(endpoint))

	d.Publish(context.Background(), EventExecutionFailed, nil)

	waitFor(t, func() bool {
		logs := d.DeliveryLogs(endpoint.ID, 10)
		return len(logs) == 1 && logs[0].Status == DeliveryRetrying
	})

	logs := d.DeliveryLogs(endpoint.ID, 10)
	assert.Equal(t, 1, logs[0].Attempts)
	assert.NotNil(t, logs[0].NextRetryAt)
	assert.Contains(t, logs[0].Error, "non-2xx")
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"payment.succeeded"}`)
	sig := sign(payload, "secret")

	assert.True(t, VerifySignature(payload, sig, "secret"))
	assert.False(t, VerifySignature(payload, sig, "other"))
	assert.False(t, VerifySignature([]byte("tampered"), sig, "secret"))
}
