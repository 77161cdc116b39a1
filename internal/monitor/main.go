package monitor

import (
	"fmt"
	"strings"
)

type MetricType string

const (
	MetricTypePrometheus MetricType = "PROMETHEUS"
)

func ParseMetricType(metricTypeStr string) (MetricType, error) {
	metricTypeStrUpper := strings.ToUpper(metricTypeStr)
	mType := MetricType(metricTypeStrUpper)

	switch mType {
	case MetricTypePrometheus:
		return mType, nil
	default:
		return "", fmt.Errorf("invalid metric type %q", metricTypeStrUpper)
	}
}

type MetricOptions struct {
	MetricType  MetricType
	Environment string
}

func GetClient(opts MetricOptions) (MonitorClient, error) {
	switch opts.MetricType {
	case MetricTypePrometheus:
		return NewPrometheusClient()
	default:
		return nil, fmt.Errorf("unknown metric type: %q", opts.MetricType)
	}
}

// FuncMetricType distinguishes pull-style metrics whose value is computed by a
// callback at scrape time.
type FuncMetricType string

const (
	FuncGaugeType   FuncMetricType = "gauge"
	FuncCounterType FuncMetricType = "counter"
)

type FuncMetricOptions struct {
	Namespace  string
	Subservice string
	Name       string
	Help       string
	Labels     map[string]string
	Function   func() float64
}
