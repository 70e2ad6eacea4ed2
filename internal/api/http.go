package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bher20/tariffd/internal/metrics"
	"github.com/bher20/tariffd/internal/scheduler"
	"github.com/bher20/tariffd/internal/storage"
	"github.com/bher20/tariffd/pkg/providers"
)

// Server exposes the resolved tariff state over HTTP. It holds no
// domain logic: every read goes to a subscription's scheduler.
type Server struct {
	schedulers   map[string]*scheduler.Scheduler
	registry     *providers.Registry
	store        storage.Store
	refreshToken string
}

// NewServer wires the handlers around the running schedulers. The
// refresh token guards POST /refresh; an empty token disables the
// endpoint.
func NewServer(schedulers []*scheduler.Scheduler, registry *providers.Registry, store storage.Store, refreshToken string) *Server {
	byName := make(map[string]*scheduler.Scheduler, len(schedulers))
	for _, s := range schedulers {
		byName[s.Name()] = s
	}
	return &Server{
		schedulers:   byName,
		registry:     registry,
		store:        store,
		refreshToken: refreshToken,
	}
}

// NewMux constructs the HTTP mux, wiring in the rate endpoints,
// metrics, and health endpoints.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Ping(r.Context()); err != nil {
			log.Printf("api: readyz: store ping failed: %v", err)
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Rates API.
	mux.HandleFunc("/rates", s.handleListSubscriptions)
	mux.HandleFunc("/rates/", s.handleRates)

	// Provider catalog and forced refresh.
	s.registerProvidersHandler(mux)
	s.registerRefreshHandler(mux)

	return mux
}

// handleRates serves /rates/{subscription}/{current|snapshot|breakdown}.
func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	path := strings.Trim(r.URL.Path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] != "rates" {
		metrics.RequestErrorsTotal.WithLabelValues("unknown", r.URL.Path, "404").Inc()
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := parts[1]
	endpoint := parts[2]
	labelsPath := "/rates/" + endpoint

	defer func() {
		dur := time.Since(start).Seconds()
		metrics.RequestDurationSeconds.WithLabelValues(name, labelsPath).Observe(dur)
	}()
	metrics.RequestsTotal.WithLabelValues(name).Inc()

	sched, ok := s.schedulers[name]
	if !ok {
		metrics.RequestErrorsTotal.WithLabelValues(name, labelsPath, "404").Inc()
		http.NotFound(w, r)
		return
	}

	var payload interface{}
	switch endpoint {
	case "current":
		payload = sched.CurrentRate()
	case "snapshot":
		payload = sched.Snapshot()
	case "breakdown":
		payload = sched.AllCurrentRates(time.Now())
	default:
		metrics.RequestErrorsTotal.WithLabelValues(name, labelsPath, "404").Inc()
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: encode response failed: %v", err)
		metrics.RequestErrorsTotal.WithLabelValues(name, labelsPath, "500").Inc()
	}
}

// handleListSubscriptions serves GET /rates: the tracked subscriptions
// with their provenance, so operators can see at a glance which ones
// are degraded.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type subscriptionDTO struct {
		Name        string      `json:"name"`
		Provider    string      `json:"provider"`
		Region      string      `json:"region"`
		ServiceType string      `json:"service_type"`
		Schedule    string      `json:"schedule"`
		Provenance  interface{} `json:"provenance"`
	}

	var list []subscriptionDTO
	for _, sched := range s.schedulers {
		key := sched.Key()
		list = append(list, subscriptionDTO{
			Name:        sched.Name(),
			Provider:    key.Provider,
			Region:      key.Region,
			ServiceType: string(key.ServiceType),
			Schedule:    key.Schedule,
			Provenance:  sched.Provenance(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Subscriptions []subscriptionDTO `json:"subscriptions"`
	}{Subscriptions: list})
}
