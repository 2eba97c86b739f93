package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RankRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_rank_requests_total",
		Help: "Total ranking requests by sort key",
	}, []string{"sort"})
	RankDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "leads_rank_duration_ms",
		Help:    "Ranking duration in milliseconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 50},
	})
	EmptyRankingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leads_empty_rankings_total",
		Help: "Rankings that came back empty after filtering",
	})
	LocationFixesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_location_fixes_total",
		Help: "Reference point resolutions by source",
	}, []string{"source"})
	OCRSavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_ocr_saves_total",
		Help: "OCR record saves by result",
	}, []string{"result"})
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_notifications_total",
		Help: "Lead notifications by outcome",
	}, []string{"outcome"})
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_allocation_jobs_total",
		Help: "Allocation jobs by mode and status",
	}, []string{"mode", "status"})
)

func init() {
	prometheus.MustRegister(RankRequestsTotal)
	prometheus.MustRegister(RankDurationMs)
	prometheus.MustRegister(EmptyRankingsTotal)
	prometheus.MustRegister(LocationFixesTotal)
	prometheus.MustRegister(OCRSavesTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(JobsTotal)
}

func Handler() http.Handler { return promhttp.Handler() }
