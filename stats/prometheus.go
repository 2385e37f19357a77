package stats

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter re-scrapes the Registry on every HTTP request and
// reflects it into a prometheus.Registry of gauges, refreshing each
// gauge right before the scrape is served.
type PrometheusExporter struct {
	registry *Registry
	promReg  *prometheus.Registry
	inner    http.Handler

	mu     sync.Mutex
	gauges map[string]prometheus.Gauge
}

// NewPrometheusExporter builds a PrometheusExporter over registry.
func NewPrometheusExporter(registry *Registry) *PrometheusExporter {
	promReg := prometheus.NewRegistry()
	return &PrometheusExporter{
		registry: registry,
		promReg:  promReg,
		inner:    promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		gauges:   make(map[string]prometheus.Gauge),
	}
}

// Handler returns the http.Handler to mount at /metrics. Each request
// refreshes every gauge from the Registry before delegating to the
// standard promhttp handler.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.refresh()
		e.inner.ServeHTTP(w, r)
	})
}

func (e *PrometheusExporter) refresh() {
	for key, val := range e.registry.Snapshot() {
		e.mu.Lock()
		g, ok := e.gauges[key]
		if !ok {
			g = prometheus.NewGauge(prometheus.GaugeOpts{
				Name: flattenKey(key),
				Help: key,
			})
			if err := e.promReg.Register(g); err != nil {
				are := &prometheus.AlreadyRegisteredError{}
				if errors.As(err, are) {
					g = are.ExistingCollector.(prometheus.Gauge)
				} else {
					log.Errorf("stats: failed to register metric %s: %v", key, err)
					e.mu.Unlock()
					continue
				}
			}
			e.gauges[key] = g
		}
		e.mu.Unlock()
		g.Set(float64(val))
	}
}

func flattenKey(key string) string {
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, ".", "_")
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, "=", "_")
	key = strings.ReplaceAll(key, "/", "_")
	return key
}
