package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/bher20/tariffd/internal/tariff"
)

// RefreshResponse is the response structure for the refresh endpoint.
type RefreshResponse struct {
	Subscription string             `json:"subscription"`
	Status       string             `json:"status"`
	Error        string             `json:"error,omitempty"`
	Provenance   *tariff.Provenance `json:"provenance,omitempty"`
}

// registerRefreshHandler wires POST /refresh/{subscription}: clear the
// cache and run an acquisition cycle out of schedule. Guarded by a
// bearer token; without a configured token the endpoint is disabled.
func (s *Server) registerRefreshHandler(mux *http.ServeMux) {
	mux.HandleFunc("/refresh/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.refreshToken == "" {
			http.Error(w, "refresh disabled", http.StatusForbidden)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.refreshToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/refresh/")
		sched, ok := s.schedulers[name]
		if !ok {
			http.NotFound(w, r)
			return
		}

		log.Printf("api: forced refresh requested for %s", name)
		snap := sched.ForceRefresh(r.Context())

		resp := RefreshResponse{
			Subscription: name,
			Status:       "ok",
			Provenance:   &snap.Provenance,
		}
		if snap.Provenance.UsingCache || snap.Provenance.UsingStaticFallback || !snap.HasRates() {
			resp.Status = "degraded"
			resp.Error = snap.Provenance.LastError
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}
