package stats

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySnapshotPrefixesKeys(t *testing.T) {
	r := NewRegistry()
	r.Add("buffer", func() map[string]int64 { return map[string]int64{"allocs": 3} })
	r.Add("nic", func() map[string]int64 { return map[string]int64{"rx": 7} })

	snap := r.Snapshot()
	assert.Equal(t, int64(3), snap["buffer.allocs"])
	assert.Equal(t, int64(7), snap["nic.rx"])
}

func TestJSONExporterServesSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Add("buffer", func() map[string]int64 { return map[string]int64{"allocs": 42} })
	e := NewJSONExporter(r)

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	e.handleRequest(w, req)

	var out map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, int64(42), out["buffer.allocs"])
}

func TestPrometheusExporterRegistersGauges(t *testing.T) {
	r := NewRegistry()
	r.Add("buffer", func() map[string]int64 { return map[string]int64{"allocs": 5} })
	e := NewPrometheusExporter(r)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "buffer_allocs")
}

func TestFlattenKeyReplacesSeparators(t *testing.T) {
	assert.Equal(t, "a_b_c_d_e", flattenKey("a b.c-d=e"))
}
