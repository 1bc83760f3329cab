package resilience

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/studioloom/aicore/core"
)

// StatsHandler serves the orchestrator's Stats as JSON. Read-only; intended
// for dashboards and manual inspection, not as a control surface.
func StatsHandler(o *Orchestrator, logger core.Logger) http.Handler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	fn := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(o.Stats()); err != nil {
			logger.Error("Failed to encode stats response", map[string]interface{}{
				"operation": "stats_http",
				"error":     err.Error(),
			})
		}
	}
	return otelhttp.NewHandler(http.HandlerFunc(fn), "aicore.stats")
}

// NewStatsMux returns a mux with the stats endpoint mounted at /v1/stats.
func NewStatsMux(o *Orchestrator, logger core.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/v1/stats", StatsHandler(o, logger))
	return mux
}
