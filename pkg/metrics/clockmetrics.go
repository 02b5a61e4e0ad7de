package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClockMetrics encapsulates all GPS clock metrics
type ClockMetrics struct {
	// Discipline
	OffsetMicroseconds    prometheus.Gauge
	LastDeltaMicroseconds prometheus.Gauge
	AccuracySeconds       prometheus.Gauge
	AccuracyKnown         prometheus.Gauge
	Quality               *prometheus.GaugeVec // one-hot by quality level
	Synced                prometheus.Gauge
	Fusions               prometheus.Gauge
	Alignment             *prometheus.GaugeVec
	PPSAgeSeconds         prometheus.Gauge
	MessageAgeSeconds     prometheus.Gauge
	PPSEdges              prometheus.Gauge

	// Receiver
	FramesAccepted  *prometheus.GaugeVec
	FramesIgnored   *prometheus.GaugeVec
	FramesRejected  *prometheus.GaugeVec
	AccuracyReports prometheus.Gauge
	SerialOpens     prometheus.Gauge
	SerialFailures  prometheus.Gauge
	SerialBytesRead prometheus.Gauge
	SerialBreaker   prometheus.Gauge

	// Reference cross-check
	ReferenceDivergenceSeconds *prometheus.GaugeVec
	ReferenceMeanSeconds       *prometheus.GaugeVec
	ReferenceStdDevSeconds     *prometheus.GaugeVec
	ReferenceRTTSeconds        *prometheus.GaugeVec
	ReferenceStratum           *prometheus.GaugeVec
	ReferenceReachable         *prometheus.GaugeVec
	ReferenceChecks            *prometheus.GaugeVec
	ReferenceFailures          *prometheus.GaugeVec

	// Outputs
	BroadcastSent    prometheus.Gauge
	BroadcastErrors  prometheus.Gauge
	WebSocketClients prometheus.Gauge

	// Operational
	BuildInfo                *prometheus.GaugeVec
	CollectionsTotal         *prometheus.CounterVec
	CollectorDurationSeconds *prometheus.HistogramVec
	HTTPRequestsTotal        *prometheus.CounterVec
	SettingsUpdatesTotal     *prometheus.CounterVec
}

func gauge(namespace, subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func gaugeVec(namespace, subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

// NewClockMetricsWithConfig creates all metrics under namespace and subsystem
func NewClockMetricsWithConfig(namespace, subsystem string) *ClockMetrics {
	return &ClockMetrics{
		OffsetMicroseconds:    gauge(namespace, subsystem, "offset_microseconds", "Epoch microseconds at counter zero"),
		LastDeltaMicroseconds: gauge(namespace, subsystem, "last_delta_microseconds", "Offset change applied by the last fusion"),
		AccuracySeconds:       gauge(namespace, subsystem, "accuracy_seconds", "Receiver reported time accuracy in seconds"),
		AccuracyKnown:         gauge(namespace, subsystem, "accuracy_known", "Whether the receiver has reported an accuracy (1) or not (0)"),
		Quality:               gaugeVec(namespace, subsystem, "quality", "Current time quality, 1 for the active level", "quality"),
		Synced:                gauge(namespace, subsystem, "synced", "Whether at least one fusion succeeded (1) or not (0)"),
		Fusions:               gauge(namespace, subsystem, "fusions", "Number of accepted fusions"),
		Alignment:             gaugeVec(namespace, subsystem, "alignment", "Alignment used by the last fusion, 1 for the active one", "alignment"),
		PPSAgeSeconds:         gauge(namespace, subsystem, "pps_age_seconds", "Time since the last PPS edge, -1 if never seen"),
		MessageAgeSeconds:     gauge(namespace, subsystem, "message_age_seconds", "Time since the last fused message, -1 if never seen"),
		PPSEdges:              gauge(namespace, subsystem, "pps_edges", "PPS edges captured"),

		FramesAccepted:  gaugeVec(namespace, "receiver", "frames_accepted", "Receiver frames fused or applied", "protocol"),
		FramesIgnored:   gaugeVec(namespace, "receiver", "frames_ignored", "Valid receiver frames of an unused type", "protocol"),
		FramesRejected:  gaugeVec(namespace, "receiver", "frames_rejected", "Receiver frames rejected", "protocol", "reason"),
		AccuracyReports: gauge(namespace, "receiver", "accuracy_reports", "NAV-CLOCK accuracy reports applied"),
		SerialOpens:     gauge(namespace, "receiver", "serial_opens", "Successful serial port opens"),
		SerialFailures:  gauge(namespace, "receiver", "serial_open_failures", "Failed serial port opens"),
		SerialBytesRead: gauge(namespace, "receiver", "serial_bytes_read", "Bytes read from the receiver"),
		SerialBreaker:   gauge(namespace, "receiver", "serial_breaker_state", "Serial reopen breaker state (0 closed, 1 half-open, 2 open)"),

		ReferenceDivergenceSeconds: gaugeVec(namespace, "reference", "divergence_seconds", "Disciplined time minus reference server time", "server"),
		ReferenceMeanSeconds:       gaugeVec(namespace, "reference", "divergence_mean_seconds", "Mean divergence over the recent samples", "server"),
		ReferenceStdDevSeconds:     gaugeVec(namespace, "reference", "divergence_stddev_seconds", "Standard deviation of the recent divergences", "server"),
		ReferenceRTTSeconds:        gaugeVec(namespace, "reference", "rtt_seconds", "Round-trip time of the last reference query", "server"),
		ReferenceStratum:           gaugeVec(namespace, "reference", "stratum", "Stratum of the reference server", "server"),
		ReferenceReachable:         gaugeVec(namespace, "reference", "reachable", "Whether the last check succeeded (1) or not (0)", "server"),
		ReferenceChecks:            gaugeVec(namespace, "reference", "checks", "Reference checks attempted", "server"),
		ReferenceFailures:          gaugeVec(namespace, "reference", "failures", "Reference checks failed", "server"),

		BroadcastSent:    gauge(namespace, "broadcast", "datagrams_sent", "UDP time datagrams sent"),
		BroadcastErrors:  gauge(namespace, "broadcast", "datagram_errors", "UDP time datagrams that failed to send"),
		WebSocketClients: gauge(namespace, "broadcast", "websocket_clients", "Connected websocket clients"),

		BuildInfo: gaugeVec(namespace, "", "build_info", "Build information", "version", "commit", "go_version"),

		CollectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collections_total",
				Help:      "Collector runs by result",
			},
			[]string{"collector", "status"},
		),
		CollectorDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collector_duration_seconds",
				Help:      "Duration of collector runs",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 5},
			},
			[]string{"collector"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by path and status code",
			},
			[]string{"path", "code"},
		),
		SettingsUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settings_updates_total",
				Help:      "Settings update attempts by result",
			},
			[]string{"result"},
		),
	}
}

// NewClockMetrics creates all metrics with the default namespace
func NewClockMetrics() *ClockMetrics {
	return NewClockMetricsWithConfig("gpsclock", "")
}

func (m *ClockMetrics) all() []prometheus.Collector {
	return []prometheus.Collector{
		m.OffsetMicroseconds,
		m.LastDeltaMicroseconds,
		m.AccuracySeconds,
		m.AccuracyKnown,
		m.Quality,
		m.Synced,
		m.Fusions,
		m.Alignment,
		m.PPSAgeSeconds,
		m.MessageAgeSeconds,
		m.PPSEdges,

		m.FramesAccepted,
		m.FramesIgnored,
		m.FramesRejected,
		m.AccuracyReports,
		m.SerialOpens,
		m.SerialFailures,
		m.SerialBytesRead,
		m.SerialBreaker,

		m.ReferenceDivergenceSeconds,
		m.ReferenceMeanSeconds,
		m.ReferenceStdDevSeconds,
		m.ReferenceRTTSeconds,
		m.ReferenceStratum,
		m.ReferenceReachable,
		m.ReferenceChecks,
		m.ReferenceFailures,

		m.BroadcastSent,
		m.BroadcastErrors,
		m.WebSocketClients,

		m.BuildInfo,
		m.CollectionsTotal,
		m.CollectorDurationSeconds,
		m.HTTPRequestsTotal,
		m.SettingsUpdatesTotal,
	}
}

// Describe implements prometheus.Collector
func (m *ClockMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range m.all() {
		metric.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *ClockMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, metric := range m.all() {
		metric.Collect(ch)
	}
}
