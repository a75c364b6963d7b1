package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapcraft_fetch_requests_total",
		Help: "Total upstream tile requests",
	}, []string{"source"})
	FetchFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapcraft_fetch_fail_total",
		Help: "Total upstream tile request failures",
	}, []string{"source"})
	FetchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mapcraft_fetch_duration_ms",
		Help:    "Upstream request duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"source"})
	TilesDecodedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcraft_tiles_decoded_total",
		Help: "Total tiles decoded from upstream batches",
	})
	EntitiesParsedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapcraft_entities_parsed_total",
		Help: "Total entities built by the layer parser",
	}, []string{"kind"})
	RuleMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapcraft_rule_mutations_total",
		Help: "Total style rule mutations",
	}, []string{"domain"})
	SupersededRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcraft_superseded_runs_total",
		Help: "Total selection runs discarded because a newer run committed first",
	})
	ExportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcraft_exports_total",
		Help: "Total successful exports",
	})
	ExportFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcraft_export_fail_total",
		Help: "Total failed exports",
	})
)

func init() {
	prometheus.MustRegister(FetchRequestsTotal)
	prometheus.MustRegister(FetchFailTotal)
	prometheus.MustRegister(FetchDurationMs)
	prometheus.MustRegister(TilesDecodedTotal)
	prometheus.MustRegister(EntitiesParsedTotal)
	prometheus.MustRegister(RuleMutationsTotal)
	prometheus.MustRegister(SupersededRunsTotal)
	prometheus.MustRegister(ExportsTotal)
	prometheus.MustRegister(ExportFailTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
