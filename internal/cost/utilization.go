package cost

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/backbone/internal/clock"
)

// UtilizationSource answers a utilization query with a fraction in [0,1].
type UtilizationSource interface {
	Utilization(ctx context.Context, query string) (float64, error)
}

// PrometheusSource evaluates instant PromQL queries.
type PrometheusSource struct {
	client v1.API
	url    string
	clock  clock.Clock
}

// SourceOption configures a PrometheusSource.
type SourceOption func(*PrometheusSource)

// WithSourceClock sets the clock that stamps each instant query.
func WithSourceClock(c clock.Clock) SourceOption {
	return func(p *PrometheusSource) { p.clock = c }
}

func NewPrometheusSource(url string, opts ...SourceOption) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{Address: url})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	p := &PrometheusSource{client: v1.NewAPI(client), url: url, clock: clock.Real{}}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Utilization sums the samples of the query's vector result.
func (p *PrometheusSource) Utilization(ctx context.Context, query string) (float64, error) {
	result, warnings, err := p.client.Query(ctx, query, p.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("query prometheus: %w", err)
	}
	if len(warnings) > 0 {
		log.Warn().Strs("warnings", warnings).Str("query", query).Msg("Prometheus returned warnings")
	}

	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, fmt.Errorf("no data for query: %s", query)
		}
		sum := 0.0
		for _, sample := range v {
			sum += float64(sample.Value)
		}
		return sum, nil
	case *model.Scalar:
		return float64(v.Value), nil
	default:
		return 0, fmt.Errorf("unsupported result type %s for query: %s", result.Type(), query)
	}
}

// URL is the server address.
func (p *PrometheusSource) URL() string { return p.url }

// RefreshUtilization re-reads every resource that carries a query. A failed
// query keeps the previous value. It returns the number of resources updated.
func (o *Optimizer) RefreshUtilization(ctx context.Context, src UtilizationSource) int {
	if src == nil {
		return 0
	}
	updated := 0
	for _, r := range o.resources {
		if r.UtilizationQuery == "" {
			continue
		}
		u, err := src.Utilization(ctx, r.UtilizationQuery)
		if err != nil {
			log.Warn().Err(err).Str("resource", r.ID).Msg("Utilization refresh failed, keeping previous value")
			continue
		}
		r.Utilization = clamp01(u)
		r.LastCheck = o.clock.Now()
		updated++
	}
	return updated
}
