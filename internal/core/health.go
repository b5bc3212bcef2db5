package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds the total time spent on health probes.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a single subsystem health check.
type HealthProbe interface {
	// Name identifies the probe, e.g. "database".
	Name() string

	// Check reports whether the subsystem is reachable. It must respect
	// the context deadline.
	Check(ctx context.Context) error
}

// componentStatus is the health state of one subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON body of the health endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HealthHandler runs all probes concurrently and returns 200 when every
// subsystem is healthy, 503 otherwise. Mounted unauthenticated at /health.
func HealthHandler(probes ...HealthProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if len(probes) == 0 {
			JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
			return
		}

		type probeResult struct {
			name string
			err  error
		}

		var (
			mu      sync.Mutex
			results = make([]probeResult, 0, len(probes))
			wg      sync.WaitGroup
		)

		for _, probe := range probes {
			wg.Add(1)
			go func(p HealthProbe) {
				defer wg.Done()

				var err error
				func() {
					defer func() {
						if rvr := recover(); rvr != nil {
							err = fmt.Errorf("probe panicked: %v", rvr)
						}
					}()
					err = p.Check(ctx)
				}()

				mu.Lock()
				results = append(results, probeResult{name: p.Name(), err: err})
				mu.Unlock()
			}(probe)
		}
		wg.Wait()

		components := make(map[string]componentStatus, len(results))
		healthy := true
		for _, res := range results {
			if res.err != nil {
				healthy = false
				components[res.name] = componentStatus{Status: "unhealthy", Message: res.err.Error()}
			} else {
				components[res.name] = componentStatus{Status: "healthy"}
			}
		}

		status := http.StatusOK
		resp := healthResponse{Status: "healthy", Components: components}
		if !healthy {
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
		}
		JSON(w, r, status, resp)
	}
}
