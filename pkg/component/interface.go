// Package component holds clients for the external systems the service
// depends on.
package component

import (
	"context"
	"sort"
	"time"
)

// Component is an external dependency that can report its health.
type Component interface {
	// Name identifies the component in health reports.
	Name() string
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// Status is the health of one component.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// CheckAll pings every component with timeout and returns the statuses
// sorted by name, plus whether all of them are healthy.
func CheckAll(ctx context.Context, timeout time.Duration, comps ...Component) ([]Status, bool) {
	statuses := make([]Status, 0, len(comps))
	healthy := true
	for _, c := range comps {
		if c == nil {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Ping(pctx)
		cancel()

		st := Status{Name: c.Name(), Healthy: err == nil}
		if err != nil {
			st.Error = err.Error()
			healthy = false
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses, healthy
}
