// Package metrics exposes Prometheus collectors for the pipeline. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors.
type Metrics struct {
	liveness    *prometheus.CounterVec
	identify    *prometheus.CounterVec
	enrollments *prometheus.CounterVec
	attendance  *prometheus.CounterVec
	training    prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		liveness: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_liveness_total",
			Help: "Liveness evaluations by result.",
		}, []string{"result"}),
		identify: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_identify_total",
			Help: "Identification attempts by outcome.",
		}, []string{"outcome"}),
		enrollments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_enrollments_total",
			Help: "Enrollment attempts by result.",
		}, []string{"result"}),
		attendance: f.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_attendance_total",
			Help: "Attendance log calls by whether they were recorded.",
		}, []string{"recorded"}),
		training: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceattend_training_seconds",
			Help:    "Duration of full model retraining.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// Liveness counts an evaluation.
func (m *Metrics) Liveness(live bool) {
	if m == nil {
		return
	}
	result := "fail"
	if live {
		result = "pass"
	}
	m.liveness.WithLabelValues(result).Inc()
}

// Identify counts an identification outcome.
func (m *Metrics) Identify(outcome string) {
	if m == nil {
		return
	}
	m.identify.WithLabelValues(outcome).Inc()
}

// Enrollment counts an enrollment result.
func (m *Metrics) Enrollment(success bool) {
	if m == nil {
		return
	}
	result := "fail"
	if success {
		result = "success"
	}
	m.enrollments.WithLabelValues(result).Inc()
}

// Attendance counts a ledger call.
func (m *Metrics) Attendance(recorded bool) {
	if m == nil {
		return
	}
	m.attendance.WithLabelValues(strconv.FormatBool(recorded)).Inc()
}

// Training observes a retraining duration.
func (m *Metrics) Training(d time.Duration) {
	if m == nil {
		return
	}
	m.training.Observe(d.Seconds())
}
