package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-energy-consolidator/pkg/cluster"
	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// fakePrometheus answers instant queries with a fixed value per metric name
func fakePrometheus(t *testing.T, values map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		query := r.FormValue("query")
		w.Header().Set("Content-Type", "application/json")
		for metric, value := range values {
			if strings.Contains(query, metric) {
				fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{"instance":"node-1:9100"},"value":[1700000000,"%s"]}]}}`, value)
				return
			}
		}
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
}

func hostView(id string) cluster.HostView {
	return cluster.HostView{Profile: models.HostProfile{ID: id, Cores: 8, MemoryGB: 16, IdleWatts: 80, MaxWatts: 200}}
}

func TestPrometheusSourceSample(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		"node_cpu_seconds_total": "0.42",
		"node_memory":            "0.61",
	})
	defer srv.Close()

	src, err := NewPrometheusSource(DefaultConfig(srv.URL))
	require.NoError(t, err)

	u, err := src.Sample(context.Background(), hostView("node-1"))
	require.NoError(t, err)
	assert.InDelta(t, 0.42, u.CPU, 1e-9)
	assert.InDelta(t, 0.61, u.Memory, 1e-9)
	assert.True(t, src.IsAvailable(context.Background()))
	assert.Equal(t, "Prometheus", src.Name())
}

func TestPrometheusSourceNoData(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{"node_cpu_seconds_total": "0.3"})
	defer srv.Close()

	src, err := NewPrometheusSource(DefaultConfig(srv.URL))
	require.NoError(t, err)

	_, err = src.Sample(context.Background(), hostView("node-1"))
	assert.ErrorContains(t, err, "memory query failed")
}

func TestPrometheusSourceClampsValues(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		"node_cpu_seconds_total": "1.7",
		"node_memory":            "-0.2",
	})
	defer srv.Close()

	src, err := NewPrometheusSource(DefaultConfig(srv.URL))
	require.NoError(t, err)

	u, err := src.Sample(context.Background(), hostView("node-1"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, u.CPU)
	assert.Equal(t, 0.0, u.Memory)
}

func TestQueriesSelectHost(t *testing.T) {
	src, err := NewPrometheusSource(DefaultConfig("http://localhost:9090"))
	require.NoError(t, err)

	assert.Equal(t,
		`1 - avg(rate(node_cpu_seconds_total{mode="idle",instance=~"10\.0\.0\.5(:[0-9]+)?"}[1m]))`,
		src.cpuQuery("10.0.0.5"))
	assert.Contains(t, src.memoryQuery("node-1"), `node_memory_MemAvailable_bytes{instance=~"node-1(:[0-9]+)?"}`)
}
