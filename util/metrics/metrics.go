package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegisterPrometheusMetrics register all prometheus metrics with the global
// metrics handler.
func RegisterPrometheusMetrics() {
	prometheus.Register(WarehouseQueryTimeSeconds)
	prometheus.Register(WarehouseQueryErrors)
	prometheus.Register(CacheRequests)
	prometheus.Register(CoalescedRequests)
	prometheus.Register(DroppedFilterRules)
	prometheus.Register(IBAggregationTimeSeconds)
}

// Prometheus metric names broken out for reuse.
const (
	WarehouseQueryTimeName   = "warehouse_query_time_sec"
	WarehouseQueryErrorsName = "warehouse_query_errors"
	CacheRequestsName        = "cache_requests"
	CoalescedRequestsName    = "coalesced_requests"
	DroppedFilterRulesName   = "dropped_filter_rules"
	IBAggregationTimeName    = "ib_aggregation_time_sec"
)

// Label values of CacheRequests.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Initialize the prometheus objects.
var (
	// AllMetricNames is a reference for all the custom metric names.
	AllMetricNames = []string{
		WarehouseQueryTimeName,
		WarehouseQueryErrorsName,
		CacheRequestsName,
		CoalescedRequestsName,
		DroppedFilterRulesName,
		IBAggregationTimeName,
	}

	WarehouseQueryTimeSeconds = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Subsystem: "dashboard_api",
			Name:      WarehouseQueryTimeName,
			Help:      "Warehouse query round trip time in seconds.",
		},
		[]string{"warehouse"})

	WarehouseQueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "dashboard_api",
			Name:      WarehouseQueryErrorsName,
			Help:      "Failed warehouse queries.",
		},
		[]string{"warehouse"})

	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "dashboard_api",
			Name:      CacheRequestsName,
			Help:      "Report cache lookups by report and result.",
		},
		[]string{"report", "result"})

	CoalescedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "dashboard_api",
			Name:      CoalescedRequestsName,
			Help:      "Requests answered by an identical in-flight query.",
		},
		[]string{"report"})

	DroppedFilterRules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "dashboard_api",
			Name:      DroppedFilterRulesName,
			Help:      "Filter rules skipped because of an unknown field, operator or value.",
		},
		[]string{"endpoint"})

	IBAggregationTimeSeconds = prometheus.NewSummary(
		prometheus.SummaryOpts{
			Subsystem: "dashboard_api",
			Name:      IBAggregationTimeName,
			Help:      "Time spent aggregating IB wallet metrics in seconds.",
		})
)
