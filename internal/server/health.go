package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthCheck is one named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func checkHealth(ctx context.Context, checks []HealthCheck) HealthStatus {
	h := HealthStatus{Status: "healthy", Checks: make(map[string]string, len(checks))}
	for _, c := range checks {
		if err := c.Check(ctx); err != nil {
			h.Status = "unhealthy"
			h.Checks[c.Name] = err.Error()
			continue
		}
		h.Checks[c.Name] = "ok"
	}
	return h
}

func healthHandler(checks []HealthCheck, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		h := checkHealth(ctx, checks)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	}
}
