package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	authTransitionCounter func(string, string)
	authStatusGauge       func(string)
)

func init() {
	tc := MustRegisterNewCounter(
		"auth_status_transition",
		"Per (from,to) status transition counter.",
		[]string{"from", "to"},
	)

	sg := MustRegisterNewGauge(
		"auth_status",
		"Current authentication status, one-hot across the status label.",
		[]string{"status"},
	)

	authTransitionCounter = func(from, to string) {
		tc(prometheus.Labels{"from": from, "to": to})
	}

	// one-hot: set the new status to 1 and the previously active one
	// back to 0.
	var mu sync.Mutex
	var active string
	authStatusGauge = func(status string) {
		mu.Lock()
		defer mu.Unlock()
		if active != "" && active != status {
			sg(prometheus.Labels{"status": active}, 0)
		}
		sg(prometheus.Labels{"status": status}, 1)
		active = status
	}
}

// AuthTransitionCounter records a status transition from -> to.
func AuthTransitionCounter(from, to string) {
	authTransitionCounter(from, to)
}

// AuthStatusGauge marks status as the currently active status.
func AuthStatusGauge(status string) {
	authStatusGauge(status)
}
