package health

import (
	"encoding/json"
	"net/http"
	"time"
)

type checkBody struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type reportBody struct {
	Status string               `json:"status"`
	Time   time.Time            `json:"time"`
	Checks map[string]checkBody `json:"checks,omitempty"`
}

// LivenessHandler answers 200 while the process is up. No dependencies are
// probed.
func LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeReport(w, http.StatusOK, reportBody{Status: Healthy.String(), Time: time.Now().UTC()})
	})
}

// ReadinessHandler runs the aggregate check and answers 200 when the
// gateway can serve invocations, 503 otherwise. Degraded still serves.
func ReadinessHandler(aggregator *Aggregator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := aggregator.CheckAll(r.Context())
		overall := Overall(results)

		checks := make(map[string]checkBody, len(results))
		for name, result := range results {
			checks[name] = checkBody{
				Status:     result.Status.String(),
				Message:    result.Message,
				DurationMS: result.Duration.Milliseconds(),
			}
		}

		status := http.StatusOK
		if overall == Unhealthy {
			status = http.StatusServiceUnavailable
		}
		writeReport(w, status, reportBody{
			Status: overall.String(),
			Time:   time.Now().UTC(),
			Checks: checks,
		})
	})
}

func writeReport(w http.ResponseWriter, status int, body reportBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
