package monitor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/paymenthub/payment-engine-backend/internal/log"
)

type prometheusClient struct {
	httpHandler http.Handler
	registry    *prometheus.Registry
}

// LogLevelCounters is a logrus hook-compliant struct that records metrics
// about logging when added to a logrus.Logger.
type LogLevelCounters map[logrus.Level]prometheus.Counter

// Fire is triggered by logrus, in response to a logging event
func (m *LogLevelCounters) Fire(e *logrus.Entry) error {
	(*m)[e.Level].Inc()
	return nil
}

// Levels returns the logging levels that will trigger this hook to run.
func (m *LogLevelCounters) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.WarnLevel,
		logrus.ErrorLevel,
		logrus.PanicLevel,
	}
}

func (prometheusClient) GetMetricType() MetricType {
	return MetricTypePrometheus
}

func (p *prometheusClient) GetMetricHttpHandler() http.Handler {
	return p.httpHandler
}

func (p *prometheusClient) MonitorHttpRequestDuration(duration time.Duration, labels HTTPRequestLabels) {
	SummaryVecMetrics[HTTPRequestDurationTag].With(prometheus.Labels{
		"status":      labels.Status,
		"route":       labels.Route,
		"method":      labels.Method,
		"tenant_name": labels.TenantName,
	}).Observe(duration.Seconds())
}

func (p *prometheusClient) MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) {
	summary := SummaryVecMetrics[tag]
	summary.With(prometheus.Labels{
		"query_type": labels.QueryType,
	}).Observe(duration.Seconds())
}

func (p *prometheusClient) MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string) {
	summary := SummaryVecMetrics[tag]
	summary.With(labels).Observe(duration.Seconds())
}

func (p *prometheusClient) MonitorCounters(tag MetricTag, labels map[string]string) {
	if len(labels) != 0 {
		if counterVecMetric, ok := CounterVecMetrics[tag]; ok {
			counterVecMetric.With(labels).Inc()
		} else {
			log.Errorf("metric not registered in Prometheus CounterVecMetrics: %s", tag)
		}
	} else {
		if counterMetric, ok := CounterMetrics[tag]; ok {
			counterMetric.Inc()
		} else {
			log.Errorf("metric not registered in Prometheus CounterMetrics: %s", tag)
		}
	}
}

func (p *prometheusClient) MonitorHistogram(value float64, tag MetricTag, labels map[string]string) {
	histogram := HistogramVecMetrics[tag]
	histogram.With(labels).Observe(value)
}

// RegisterFunctionMetric registers a gauge or counter whose value is computed
// by the given callback at scrape time.
func (p *prometheusClient) RegisterFunctionMetric(metricType FuncMetricType, opts FuncMetricOptions) {
	var collector prometheus.Collector
	switch metricType {
	case FuncGaugeType:
		collector = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subservice, Name: opts.Name,
			Help: opts.Help, ConstLabels: opts.Labels,
		}, opts.Function)
	case FuncCounterType:
		collector = prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: opts.Namespace, Subsystem: opts.Subservice, Name: opts.Name,
			Help: opts.Help, ConstLabels: opts.Labels,
		}, opts.Function)
	default:
		log.Errorf("unknown function metric type %q for metric %s", metricType, opts.Name)
		return
	}

	if err := p.registry.Register(collector); err != nil {
		log.Errorf("registering function metric %s: %s", opts.Name, err.Error())
	}
}

func NewPrometheusClient() (*prometheusClient, error) {
	// register Prometheus metrics
	metricsRegistry := prometheus.NewRegistry()

	// register default process and Go runtime metrics
	metricsRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsRegistry.MustRegister(collectors.NewGoCollector())

	var metricTag MetricTag
	for _, tag := range metricTag.ListAll() {
		if summaryVecMetric, ok := SummaryVecMetrics[tag]; ok {
			metricsRegistry.MustRegister(summaryVecMetric)
		} else if counterMetric, ok := CounterMetrics[tag]; ok {
			metricsRegistry.MustRegister(counterMetric)
		} else if counterVecMetric, ok := CounterVecMetrics[tag]; ok {
			metricsRegistry.MustRegister(counterVecMetric)
		} else if histogramVecMetric, ok := HistogramVecMetrics[tag]; ok {
			metricsRegistry.MustRegister(histogramVecMetric)
		} else {
			return nil, fmt.Errorf("metric not registered in prometheus metrics: %s", tag)
		}
	}

	// create a logging hook that increments a Prometheus counter per log level
	logCounterHook := &LogLevelCounters{
		logrus.WarnLevel: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: DefaultNamespace, Subsystem: "log", Name: "warn_total",
		}),
		logrus.ErrorLevel: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: DefaultNamespace, Subsystem: "log", Name: "error_total",
		}),
		logrus.PanicLevel: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: DefaultNamespace, Subsystem: "log", Name: "panic_total",
		}),
	}

	for _, metric := range *logCounterHook {
		metricsRegistry.MustRegister(metric)
	}

	log.DefaultLogger.AddHook(logCounterHook)

	return &prometheusClient{
		httpHandler: promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}),
		registry:    metricsRegistry,
	}, nil
}

// Ensuring that prometheusClient is implementing MonitorClient interface
var _ MonitorClient = (*prometheusClient)(nil)
