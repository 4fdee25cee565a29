package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry       *prometheus.Registry
	marketsCreated prometheus.Counter
	steps          prometheus.Counter
	trades         prometheus.Counter
	dealPrice      prometheus.Histogram
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		marketsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dauction",
			Name:      "markets_created_total",
			Help:      "Markets created over the server's lifetime.",
		}),
		steps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dauction",
			Name:      "steps_total",
			Help:      "Market rounds stepped across all markets.",
		}),
		trades: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dauction",
			Name:      "trades_total",
			Help:      "Matched buyer/seller pairs across all markets.",
		}),
		dealPrice: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dauction",
			Name:      "deal_price",
			Help:      "Distribution of deal prices.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
