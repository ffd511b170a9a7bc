package metrics

import (
    "fmt"
    "net/http"
    
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/kargodata/recherche-orchestrator/pkg/logger"
)

type PrometheusMetrics struct {
    counters   map[string]*prometheus.CounterVec
    histograms map[string]*prometheus.HistogramVec
    gauges     map[string]*prometheus.GaugeVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
    pm := &PrometheusMetrics{
        counters:   make(map[string]*prometheus.CounterVec),
        histograms: make(map[string]*prometheus.HistogramVec),
        gauges:     make(map[string]*prometheus.GaugeVec),
    }
    
    // Register common metrics
    pm.registerMetrics()
    
    return pm
}

func (pm *PrometheusMetrics) registerMetrics() {
    // Counters
    pm.counters["dispatch_orders_processed"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "dispatch_orders_processed_total",
            Help: "Total number of orders that ended COMPLETED",
        },
        []string{"tier"},
    )

    pm.counters["dispatch_orders_failed"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "dispatch_orders_failed_total",
            Help: "Total number of orders that ended FAILED",
        },
        []string{"tier"},
    )

    pm.counters["dispatch_provider_failures"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "dispatch_provider_failures_total",
            Help: "Total provider searches that failed and were skipped",
        },
        []string{"driver"},
    )

    pm.counters["provider_calls_total"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "provider_calls_total",
            Help: "Total provider search calls",
        },
        []string{"provider", "status"},
    )

    pm.counters["dedup_new_companies"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "dedup_new_companies_total",
            Help: "Total new companies created by the dedup engine",
        },
        []string{},
    )

    pm.counters["dedup_duplicates"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "dedup_duplicates_total",
            Help: "Total raw results matched as duplicates",
        },
        []string{},
    )

    pm.counters["credit_debits"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "credit_debits_total",
            Help: "Total successful credit ledger debits",
        },
        []string{},
    )

    pm.counters["credit_insufficient_funds"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "credit_insufficient_funds_total",
            Help: "Total debits rejected for insufficient funds",
        },
        []string{},
    )

    pm.counters["ratelimit_rejected"] = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Name: "ratelimit_rejected_total",
            Help: "Total rate limiter rejections",
        },
        []string{"window"},
    )

    // Histograms
    pm.histograms["dispatch_pipeline_duration"] = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "dispatch_pipeline_duration_seconds",
            Help:    "Order pipeline duration in seconds",
            Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
        },
        []string{"tier"},
    )

    pm.histograms["provider_call_duration"] = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "provider_call_duration_seconds",
            Help:    "Provider search call duration",
            Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
        },
        []string{"provider"},
    )

    // Gauges
    pm.gauges["dispatch_active_orders"] = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "dispatch_active_orders",
            Help: "Orders currently PROCESSING in this worker",
        },
        []string{},
    )

    pm.gauges["dispatch_workers_idle"] = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "dispatch_workers_idle",
            Help: "1 when this worker has no configured providers and is sleeping",
        },
        []string{},
    )

    // Register all metrics
    for _, counter := range pm.counters {
        prometheus.MustRegister(counter)
    }
    for _, histogram := range pm.histograms {
        prometheus.MustRegister(histogram)
    }
    for _, gauge := range pm.gauges {
        prometheus.MustRegister(gauge)
    }
}

func (pm *PrometheusMetrics) IncrementCounter(name string, labels map[string]string) {
    if counter, exists := pm.counters[name]; exists {
        counter.With(prometheus.Labels(labels)).Inc()
    }
}

func (pm *PrometheusMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
    if histogram, exists := pm.histograms[name]; exists {
        histogram.With(prometheus.Labels(labels)).Observe(value)
    }
}

func (pm *PrometheusMetrics) SetGauge(name string, value float64, labels map[string]string) {
    if gauge, exists := pm.gauges[name]; exists {
        if labels == nil {
            labels = make(map[string]string)
        }
        gauge.With(prometheus.Labels(labels)).Set(value)
    }
}

func (pm *PrometheusMetrics) ServeHTTP(port int) error {
    http.Handle("/metrics", promhttp.Handler())
    addr := fmt.Sprintf(":%d", port)
    logger.WithField("addr", addr).Info("Metrics server started")
    return http.ListenAndServe(addr, nil)
}
