package cost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3cpo-dev/backbone/internal/clock"
)

type mapSource map[string]float64

func (m mapSource) Utilization(_ context.Context, query string) (float64, error) {
	v, ok := m[query]
	if !ok {
		return 0, errors.New("no data")
	}
	return v, nil
}

func TestRefreshUtilization(t *testing.T) {
	o := NewOptimizer()
	require.NoError(t, o.RegisterResource(Resource{ID: "web", Type: Compute, Utilization: 0.5, UtilizationQuery: "web_util"}))
	require.NoError(t, o.RegisterResource(Resource{ID: "db", Type: Database, Utilization: 0.4, UtilizationQuery: "db_util"}))
	require.NoError(t, o.RegisterResource(Resource{ID: "static", Type: Storage, Utilization: 0.9}))

	n := o.RefreshUtilization(context.Background(), mapSource{"web_util": 0.05})
	assert.Equal(t, 1, n)

	rs := o.Resources()
	assert.Equal(t, 0.05, rs[0].Utilization)
	assert.Equal(t, 0.4, rs[1].Utilization)
	assert.Equal(t, 0.9, rs[2].Utilization)

	assert.Equal(t, 0, o.RefreshUtilization(context.Background(), nil))
}

func TestPrometheusSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		if r.Form.Get("query") == "empty" {
			_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[` +
			`{"metric":{"instance":"a"},"value":[1700000000,"0.25"]},` +
			`{"metric":{"instance":"b"},"value":[1700000000,"0.15"]}]}}`))
	}))
	defer srv.Close()

	src, err := NewPrometheusSource(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, src.URL())

	u, err := src.Utilization(context.Background(), `avg(cpu_busy{job="web"})`)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, u, 1e-9)

	_, err = src.Utilization(context.Background(), "empty")
	assert.ErrorContains(t, err, "no data")
}

func TestPrometheusSourceUsesClock(t *testing.T) {
	var stamp string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		stamp = r.Form.Get("time")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"scalar","result":[1700000000,"0.3"]}}`))
	}))
	defer srv.Close()

	fc := clock.NewFake(time.Unix(1700000000, 0))
	src, err := NewPrometheusSource(srv.URL, WithSourceClock(fc))
	require.NoError(t, err)

	u, err := src.Utilization(context.Background(), "scalar(up)")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, u, 1e-9)
	assert.Equal(t, "1700000000", stamp)
}
