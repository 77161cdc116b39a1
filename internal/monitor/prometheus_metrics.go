package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

func PrometheusMetrics() map[MetricTag]prometheus.Collector {
	metrics := make(map[MetricTag]prometheus.Collector)

	for tag, summaryVec := range SummaryVecMetrics {
		metrics[tag] = summaryVec
	}

	for tag, counter := range CounterMetrics {
		metrics[tag] = counter
	}

	for tag, histogramVec := range HistogramVecMetrics {
		metrics[tag] = histogramVec
	}

	for tag, counterVec := range CounterVecMetrics {
		metrics[tag] = counterVec
	}

	return metrics
}

var SummaryVecMetrics = map[MetricTag]*prometheus.SummaryVec{
	HTTPRequestDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: DefaultNamespace, Subsystem: string(HTTPSubservice), Name: string(HTTPRequestDurationTag),
		Help: "HTTP requests durations, sliding window = 10m",
	},
		[]string{"status", "route", "method", "tenant_name"},
	),
	SuccessfulQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: DefaultNamespace, Subsystem: string(DBSubservice), Name: string(SuccessfulQueryDurationTag),
		Help: "Successful DB query durations",
	},
		[]string{"query_type"},
	),
	FailureQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: DefaultNamespace, Subsystem: string(DBSubservice), Name: string(FailureQueryDurationTag),
		Help: "Failure DB query durations",
	},
		[]string{"query_type"},
	),
}

var CounterMetrics = map[MetricTag]prometheus.Counter{
	RecoveredPanicsCounterTag: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(HTTPSubservice), Name: string(RecoveredPanicsCounterTag),
		Help: "A counter of panics recovered by the HTTP middleware",
	}),
}

var HistogramVecMetrics = map[MetricTag]*prometheus.HistogramVec{
	SagaStepDurationTag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: DefaultNamespace, Subsystem: string(SagaSubservice), Name: string(SagaStepDurationTag),
		Help:    "A histogram of saga step execution durations",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
	},
		SagaStepLabelNames,
	),
	ClearingRequestDurationTag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: DefaultNamespace, Subsystem: string(ClearingSubservice), Name: string(ClearingRequestDurationTag),
		Help:    "A histogram of clearing adapter request durations",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	},
		ClearingLabelNames,
	),
	ResponseDeliveryDurationTag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: DefaultNamespace, Subsystem: string(DispatchSubservice), Name: string(ResponseDeliveryDurationTag),
		Help:    "A histogram of pain.002 response delivery durations",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	},
		DispatchLabelNames,
	),
	LedgerRequestDurationTag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: DefaultNamespace, Subsystem: string(LedgerSubservice), Name: string(LedgerRequestDurationTag),
		Help:    "A histogram of ledger adapter request durations",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	},
		LedgerLabelNames,
	),
	FraudRequestDurationTag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: DefaultNamespace, Subsystem: string(FraudSubservice), Name: string(FraudRequestDurationTag),
		Help:    "A histogram of fraud scoring request durations",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	},
		FraudLabelNames,
	),
}

var CounterVecMetrics = map[MetricTag]*prometheus.CounterVec{
	PaymentsCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(BusinessSubservice), Name: string(PaymentsCounterTag),
		Help: "A counter of payments by type, scheme and status",
	},
		PaymentLabelNames,
	),
	SagaStepsCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(SagaSubservice), Name: string(SagaStepsCounterTag),
		Help: "A counter of executed saga steps by outcome",
	},
		SagaStepLabelNames,
	),
	SagaDeadLettersCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(SagaSubservice), Name: string(SagaDeadLettersCounterTag),
		Help: "A counter of sagas parked in the dead-letter queue",
	},
		[]string{"step", "tenant_name"},
	),
	ClearingRequestsTotalTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(ClearingSubservice), Name: string(ClearingRequestsTotalTag),
		Help: "A counter of clearing adapter requests",
	},
		ClearingLabelNames,
	),
	BreakerTransitionsCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(ClearingSubservice), Name: string(BreakerTransitionsCounterTag),
		Help: "A counter of circuit breaker state transitions per rail",
	},
		[]string{"rail", "from_state", "to_state"},
	),
	ClearingCallbacksCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(ClearingSubservice), Name: string(ClearingCallbacksCounterTag),
		Help: "A counter of asynchronous clearing callbacks by result",
	},
		[]string{"rail", "result", "tenant_name"},
	),
	OutboxPublishedCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(OutboxSubservice), Name: string(OutboxPublishedCounterTag),
		Help: "A counter of outbox messages published to the broker",
	},
		OutboxLabelNames,
	),
	OutboxFailedCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(OutboxSubservice), Name: string(OutboxFailedCounterTag),
		Help: "A counter of outbox publish failures",
	},
		OutboxLabelNames,
	),
	ResponseDeliveriesCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(DispatchSubservice), Name: string(ResponseDeliveriesCounterTag),
		Help: "A counter of pain.002 response deliveries by mode and result",
	},
		DispatchLabelNames,
	),
	LedgerRequestsTotalTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(LedgerSubservice), Name: string(LedgerRequestsTotalTag),
		Help: "A counter of ledger adapter requests",
	},
		LedgerLabelNames,
	),
	FraudChecksCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: DefaultNamespace, Subsystem: string(FraudSubservice), Name: string(FraudChecksCounterTag),
		Help: "A counter of fraud scoring checks by decision",
	},
		FraudLabelNames,
	),
}
