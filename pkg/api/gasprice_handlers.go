package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lowtide/lowtide/pkg/gasprice"
	"github.com/lowtide/lowtide/pkg/httputil"
	"github.com/lowtide/lowtide/pkg/middleware"
)

// GasPriceHandlers handles gas price monitor HTTP requests
type GasPriceHandlers struct {
	monitor *gasprice.Monitor
	feed    *gasprice.Feed
}

// NewGasPriceHandlers creates a new GasPriceHandlers. The feed may be nil,
// in which case samples are kept in memory only.
func NewGasPriceHandlers(monitor *gasprice.Monitor, feed *gasprice.Feed) *GasPriceHandlers {
	return &GasPriceHandlers{monitor: monitor, feed: feed}
}

// RegisterRoutes registers gas price routes
func (h *GasPriceHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/gas/latest", h.Latest).Methods("GET")
	router.HandleFunc("/gas/optimal", h.Optimal).Methods("GET")
	router.HandleFunc("/gas/trend", h.TrendInfo).Methods("GET")
	router.HandleFunc("/gas/recent", h.Recent).Methods("GET")

	router.Handle("/gas/samples", middleware.RequireOperator(http.HandlerFunc(h.RecordSample))).Methods("POST")
}

type recordSampleRequest struct {
	Value int64 `json:"value"`
}

// RecordSample handles POST /gas/samples
func (h *GasPriceHandlers) RecordSample(w http.ResponseWriter, r *http.Request) {
	var req recordSampleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sample, err := h.monitor.RecordSample(req.Value)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if h.feed != nil {
		if err := h.feed.Publish(r.Context(), sample); err != nil {
			// The in-memory monitor already has the sample; losing the
			// shared feed write only affects restart recovery.
			httputil.WriteSuccessMessage(w, "sample recorded; feed publish failed", sample)
			return
		}
	}

	httputil.WriteCreated(w, sample)
}

// Latest handles GET /gas/latest
func (h *GasPriceHandlers) Latest(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.monitor.Latest()
	if !ok {
		httputil.WriteNotFoundError(w, "no samples recorded yet")
		return
	}

	httputil.WriteSuccess(w, sample)
}

// Optimal handles GET /gas/optimal
func (h *GasPriceHandlers) Optimal(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]int64{"optimal_price": h.monitor.OptimalPrice()})
}

// TrendInfo handles GET /gas/trend
func (h *GasPriceHandlers) TrendInfo(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"trend":   h.monitor.Trend(),
		"samples": h.monitor.Size(),
	})
}

// Recent handles GET /gas/recent?n=
func (h *GasPriceHandlers) Recent(w http.ResponseWriter, r *http.Request) {
	n := 20
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			httputil.WriteValidationError(w, "n must be a positive integer")
			return
		}
		n = parsed
	}

	httputil.WriteSuccess(w, h.monitor.Recent(n))
}
