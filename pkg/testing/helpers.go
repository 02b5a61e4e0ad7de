package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/maximewewer/gps-clock/internal/calendar"
	"github.com/maximewewer/gps-clock/internal/nmea"
	"github.com/maximewewer/gps-clock/internal/ubx"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var (
	validMetricName = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	validLabelName  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// RMCSentence builds a checksummed GPRMC sentence terminated by CR LF.
// fraction is appended to the time field verbatim, e.g. ".25".
func RMCSentence(c calendar.CalendarTime, fraction string) []byte {
	body := fmt.Sprintf("GPRMC,%02d%02d%02d%s,A,4807.038,N,01131.000,E,022.4,084.4,%02d%02d%02d,003.1,W",
		c.Hour, c.Minute, c.Second, fraction, c.Day, c.Month, c.Year%100)
	return []byte(nmea.Format(body) + "\r\n")
}

// TimeUTCFrame builds a NAV-TIMEUTC frame with the UTC valid flag set
func TimeUTCFrame(c calendar.CalendarTime, nano int32, tAccNs uint32) []byte {
	return ubx.TimeUTC{
		TAcc:  tAccNs,
		Nano:  nano,
		Year:  uint16(c.Year),
		Month: uint8(c.Month),
		Day:   uint8(c.Day),
		Hour:  uint8(c.Hour),
		Min:   uint8(c.Minute),
		Sec:   uint8(c.Second),
		Valid: ubx.ValidTOW | ubx.ValidWKN | ubx.ValidUTC,
	}.Marshal()
}

// ClockFrame builds a NAV-CLOCK frame carrying tAccNs
func ClockFrame(tAccNs uint32) []byte {
	return ubx.Clock{TAcc: tAccNs}.Marshal()
}

// AssertMetricValue validates a Prometheus metric value
func AssertMetricValue(t *testing.T, registry prometheus.Gatherer, metricName string, labels map[string]string, expected float64) {
	t.Helper()

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != metricName {
			continue
		}

		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				var value float64
				switch mf.GetType() {
				case dto.MetricType_GAUGE:
					value = m.GetGauge().GetValue()
				case dto.MetricType_COUNTER:
					value = m.GetCounter().GetValue()
				case dto.MetricType_HISTOGRAM:
					value = m.GetHistogram().GetSampleSum()
				default:
					t.Fatalf("Unsupported metric type: %v", mf.GetType())
				}

				if value != expected {
					t.Errorf("Metric %s with labels %v: expected %f, got %f", metricName, labels, expected, value)
				}
				return
			}
		}
	}

	t.Errorf("Metric %s with labels %v not found", metricName, labels)
}

// AssertMetricExists checks if a metric exists with given labels
func AssertMetricExists(t *testing.T, registry prometheus.Gatherer, metricName string, labels map[string]string) {
	t.Helper()

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != metricName {
			continue
		}

		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				return
			}
		}
	}

	t.Errorf("Metric %s with labels %v not found", metricName, labels)
}

func labelsMatch(metricLabels []*dto.LabelPair, expected map[string]string) bool {
	if len(metricLabels) != len(expected) {
		return false
	}

	for _, label := range metricLabels {
		expectedValue, exists := expected[label.GetName()]
		if !exists || expectedValue != label.GetValue() {
			return false
		}
	}

	return true
}

// WaitForCondition polls condition every 10ms until it holds or timeout
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for condition: %s", message)
		}
		<-ticker.C
	}
}

// NewTestHTTPServer creates a test HTTP server closed with the test
func NewTestHTTPServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server
}

// ValidatePrometheusMetricName checks naming conventions and the gpsclock_ prefix
func ValidatePrometheusMetricName(t *testing.T, name string) {
	t.Helper()

	if !validMetricName.MatchString(name) {
		t.Errorf("Invalid metric name: %q (must match [a-zA-Z_:][a-zA-Z0-9_:]*)", name)
	}
	if !strings.HasPrefix(name, "gpsclock_") {
		t.Errorf("Metric name %s should have the gpsclock_ prefix", name)
	}
}

// ValidatePrometheusLabelName checks label naming conventions
func ValidatePrometheusLabelName(t *testing.T, name string) {
	t.Helper()

	if !validLabelName.MatchString(name) {
		t.Errorf("Invalid label name: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", name)
	}
	for _, r := range []string{"__name__", "job", "instance"} {
		if name == r {
			t.Errorf("Label name %s is reserved", name)
		}
	}
}
