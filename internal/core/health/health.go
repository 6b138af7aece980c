// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Check is a named dependency probe, e.g. a Redis PING.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Readiness reports ready when rr (if any) owns partitions and every check
// passes within a second.
func Readiness(rr ReadinessReporter, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status     string            `json:"status"`
			Partitions []int32           `json:"partitions,omitempty"`
			Failing    map[string]string `json:"failing,omitempty"`
		}
		ready := true
		out := resp{}
		if rr != nil {
			var parts []int32
			ready, parts = rr.Readiness()
			out.Partitions = parts
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				if out.Failing == nil {
					out.Failing = map[string]string{}
				}
				out.Failing[c.Name] = err.Error()
				ready = false
			}
		}

		out.Status = "ready"
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			out.Status = "not_ready"
			out.Partitions = nil
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
