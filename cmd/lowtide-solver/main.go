package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lowtide/lowtide/pkg/config"
	"github.com/lowtide/lowtide/pkg/gasprice"
)

var (
	serverURL       = flag.String("server-url", getEnv("LOWTIDE_SERVER_URL", "http://localhost:8080"), "Base URL of the lowtide API server")
	apiKey          = flag.String("api-key", getEnv("LOWTIDE_OPERATOR_KEY", ""), "Operator API key")
	redisURL        = flag.String("redis-url", getEnv("LOWTIDE_REDIS_URL", ""), "Redis URL of the shared gas price feed (optional)")
	feedKey         = flag.String("feed-key", getEnv("LOWTIDE_REDIS_FEED_KEY", ""), "Redis key of the gas price feed")
	drainSchedule   = flag.String("drain-schedule", "* * * * *", "Cron schedule for drain passes (default: every minute)")
	cleanupSchedule = flag.String("cleanup-schedule", "0 * * * *", "Cron schedule for expired intent cleanup (default: hourly)")
	runOnce         = flag.Bool("run-once", false, "Run a single drain pass and exit (for testing)")
)

func main() {
	flag.Parse()

	if *apiKey == "" {
		log.Fatal("An operator API key is required (--api-key or LOWTIDE_OPERATOR_KEY)")
	}

	var feed *gasprice.Feed
	if *redisURL != "" {
		var err error
		feed, err = gasprice.NewFeed(*redisURL, *feedKey)
		if err != nil {
			log.Fatalf("Failed to connect to gas price feed: %v", err)
		}
		log.Println("Connected to shared gas price feed")
	}

	d := &drainer{
		client:    &http.Client{Timeout: 30 * time.Second},
		serverURL: *serverURL,
		apiKey:    *apiKey,
		feed:      feed,
	}

	// Run once mode (for testing or manual intervention)
	if *runOnce {
		if err := d.drain(context.Background()); err != nil {
			log.Fatalf("Drain pass failed: %v", err)
		}
		log.Println("Drain pass completed successfully")
		return
	}

	c := cron.New()
	_, err := c.AddFunc(*drainSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := d.drain(ctx); err != nil {
			log.Printf("Drain pass failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule drain passes: %v", err)
	}

	_, err = c.AddFunc(*cleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := d.cleanupExpired(ctx); err != nil {
			log.Printf("Intent cleanup failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule intent cleanup: %v", err)
	}

	c.Start()
	log.Println("Lowtide solver daemon started")
	log.Printf("Drain schedule: %s, cleanup schedule: %s", *drainSchedule, *cleanupSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Solver daemon stopped")
}

// drainer runs drain passes against a lowtide server with an operator key
type drainer struct {
	client    *http.Client
	serverURL string
	apiKey    string
	feed      *gasprice.Feed
}

// drain skips the pass when auto execution is disabled, then asks the server
// for one drain. The observed price comes from the shared feed when one is
// configured; otherwise the server falls back to its own latest sample.
func (d *drainer) drain(ctx context.Context) error {
	enabled, err := d.autoExecutionEnabled(ctx)
	if err != nil {
		return fmt.Errorf("read runtime options: %w", err)
	}
	if !enabled {
		log.Println("Auto execution disabled, skipping drain pass")
		return nil
	}

	body := map[string]interface{}{}
	if d.feed != nil {
		sample, ok, err := d.feed.Latest(ctx)
		if err != nil {
			log.Printf("Could not read the gas price feed, deferring to the server: %v", err)
		} else if ok {
			body["observed_price"] = sample.Value
		}
	}

	var result struct {
		Eligible  int `json:"eligible"`
		Executed  int `json:"executed"`
		Failed    int `json:"failed"`
		Cancelled int `json:"cancelled"`
		Remaining int `json:"remaining"`
	}
	if err := d.post(ctx, "/api/v1/solver/drain", body, &result); err != nil {
		return err
	}

	log.Printf("Drain pass: eligible=%d executed=%d failed=%d cancelled=%d remaining=%d",
		result.Eligible, result.Executed, result.Failed, result.Cancelled, result.Remaining)
	return nil
}

// cleanupExpired lazily revokes expired intents for every subscriber with an
// active subscription. Subscribers without one keep their intent as-is until
// it is next consulted.
func (d *drainer) cleanupExpired(ctx context.Context) error {
	var subs []struct {
		Subscriber string `json:"subscriber"`
	}
	if err := d.get(ctx, "/api/v1/subscriptions", &subs); err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	subscribers := make([]string, 0, len(subs))
	for _, s := range subs {
		subscribers = append(subscribers, s.Subscriber)
	}

	var result struct {
		Revoked int `json:"revoked"`
	}
	body := map[string]interface{}{"subscribers": subscribers}
	if err := d.post(ctx, "/api/v1/intents/cleanup", body, &result); err != nil {
		return err
	}
	if result.Revoked > 0 {
		log.Printf("Intent cleanup: revoked=%d", result.Revoked)
	}
	return nil
}

func (d *drainer) autoExecutionEnabled(ctx context.Context) (bool, error) {
	var values config.OptionValues
	if err := d.get(ctx, "/api/v1/admin/options", &values); err != nil {
		return false, err
	}
	return values.AutoExecution, nil
}

func (d *drainer) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.serverURL+path, nil)
	if err != nil {
		return err
	}
	return d.send(req, dest)
}

func (d *drainer) post(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return d.send(req, dest)
}

func (d *drainer) send(req *http.Request, dest interface{}) error {
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
