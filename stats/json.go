package stats

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// JSONExporter serves the registry's current snapshot as a flat JSON
// object on every request.
type JSONExporter struct {
	registry *Registry
}

// NewJSONExporter builds a JSONExporter over registry.
func NewJSONExporter(registry *Registry) *JSONExporter {
	return &JSONExporter{registry: registry}
}

// Start runs the JSON stats HTTP server on addr. It blocks until the
// server stops or fails to start.
func (e *JSONExporter) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.handleRequest)
	log.Infof("stats: starting json server on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// Handler returns the snapshot handler for mounting on a shared mux.
func (e *JSONExporter) Handler() http.Handler {
	return http.HandlerFunc(e.handleRequest)
}

func (e *JSONExporter) handleRequest(w http.ResponseWriter, _ *http.Request) {
	js, err := json.Marshal(e.registry.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		log.Errorf("stats: failed to reply: %v", err)
	}
}
