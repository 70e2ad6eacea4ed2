package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/bher20/tariffd/internal/tariff"
)

// Subscription names one tariff the daemon tracks, plus the resolution
// options that apply to it.
type Subscription struct {
	Name        string          `json:"name"`
	Provider    string          `json:"provider"`
	Region      string          `json:"region"`
	ServiceType string          `json:"service_type"`
	Schedule    string          `json:"schedule"`
	Options     *tariff.Options `json:"options,omitempty"`
}

// Key returns the acquisition key this subscription tracks.
func (s Subscription) Key() tariff.AcquisitionKey {
	return tariff.AcquisitionKey{
		Provider:    s.Provider,
		Region:      s.Region,
		ServiceType: tariff.ServiceType(s.ServiceType),
		Schedule:    s.Schedule,
	}
}

const subscriptionsEnv = "TARIFFD_SUBSCRIPTIONS_JSON"

func defaultSubscriptions() []Subscription {
	return []Subscription{
		{
			Name:        "home",
			Provider:    "xcel_energy",
			Region:      "CO",
			ServiceType: string(tariff.ServiceElectric),
			Schedule:    "residential_tou",
			Options:     &tariff.Options{IncludeAdditionalCharges: true},
		},
	}
}

// Subscriptions returns the configured subscription list, falling back
// to the default single-home setup when the env var is unset or broken.
func Subscriptions() []Subscription {
	raw := os.Getenv(subscriptionsEnv)
	if raw == "" {
		return defaultSubscriptions()
	}
	var out []Subscription
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		log.Printf("config: ignoring %s: %v", subscriptionsEnv, err)
		return defaultSubscriptions()
	}
	for i := range out {
		if out[i].Name == "" {
			out[i].Name = out[i].Key().CacheKey()
		}
	}
	return out
}

// Config holds daemon-level settings read from the environment.
type Config struct {
	Port            string
	DBDriver        string
	DBDSN           string
	RefreshInterval string // seconds or a cron expression
	RefreshToken    string
	OpenEIAPIKey    string
	PDFCacheDir     string
	HTTPTimeout     time.Duration
	Subscriptions   []Subscription
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	port := os.Getenv("TARIFFD_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = "8080"
	}
	driver := os.Getenv("TARIFFD_DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	interval := os.Getenv("TARIFFD_REFRESH_INTERVAL")
	if interval == "" {
		interval = "86400"
	}
	timeout := 30 * time.Second
	if raw := os.Getenv("TARIFFD_HTTP_TIMEOUT_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			timeout = time.Duration(v) * time.Second
		}
	}
	return Config{
		Port:            port,
		DBDriver:        driver,
		DBDSN:           os.Getenv("TARIFFD_DB_DSN"),
		RefreshInterval: interval,
		RefreshToken:    os.Getenv("TARIFFD_REFRESH_TOKEN"),
		OpenEIAPIKey:    os.Getenv("OPENEI_API_KEY"),
		PDFCacheDir:     os.Getenv("TARIFFD_PDF_CACHE_DIR"),
		HTTPTimeout:     timeout,
		Subscriptions:   Subscriptions(),
	}
}
