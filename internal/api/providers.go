package api

import (
	"encoding/json"
	"net/http"

	"github.com/bher20/tariffd/internal/tariff"
	"github.com/bher20/tariffd/pkg/providers"
)

// ProviderDTO represents a provider in the API.
type ProviderDTO struct {
	ID           string                          `json:"id"`
	Name         string                          `json:"name"`
	ShortName    string                          `json:"short_name"`
	Regions      map[tariff.ServiceType][]string `json:"regions"`
	Schedules    map[tariff.ServiceType][]string `json:"schedules"`
	Capabilities []providers.Capability          `json:"capabilities"`
}

func (s *Server) registerProvidersHandler(mux *http.ServeMux) {
	mux.HandleFunc("/providers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var list []ProviderDTO
		for _, p := range s.registry.List() {
			list = append(list, ProviderDTO{
				ID:           p.ID(),
				Name:         p.Name(),
				ShortName:    p.ShortName(),
				Regions:      p.Regions(),
				Schedules:    p.Schedules(),
				Capabilities: p.Capabilities(),
			})
		}

		response := struct {
			Providers []ProviderDTO `json:"providers"`
		}{
			Providers: list,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})
}
