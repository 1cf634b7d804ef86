package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	casesOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cases_opened_total",
			Help: "Total number of cases opened",
		},
	)

	caseStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_status_changes_total",
			Help: "Total number of case status changes",
		},
		[]string{"from_status", "to_status"},
	)

	casePriorityChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_priority_changes_total",
			Help: "Total number of case priority tier changes",
		},
		[]string{"to_tier"},
	)

	appointmentsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointments_scheduled_total",
			Help: "Total number of appointments scheduled",
		},
		[]string{"type"},
	)

	appointmentConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "appointment_conflicts_detected_total",
			Help: "Total number of advisory scheduling conflicts detected",
		},
	)

	appointmentStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_status_changes_total",
			Help: "Total number of appointment status changes",
		},
		[]string{"to_status"},
	)

	complianceRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compliance_report_runs_total",
			Help: "Total number of compliance report computations",
		},
	)

	complianceRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compliance_report_duration_seconds",
			Help:    "Compliance report computation duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	complianceOverdueCases = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "compliance_overdue_cases",
			Help: "Number of open cases currently classified Overdue",
		},
	)

	escalationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_dispatched_total",
			Help: "Total number of escalation notifications dispatched",
		},
		[]string{"event_type", "tier"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Total number of failed notification deliveries",
		},
		[]string{"provider"},
	)
)

// Recorders used by the services; kept as functions so packages do not
// depend on prometheus types directly.

func RecordCaseOpened() { casesOpened.Inc() }

func RecordCaseStatusChange(from, to string) {
	caseStatusChanged.WithLabelValues(from, to).Inc()
}

func RecordCasePriorityChange(toTier string) {
	casePriorityChanged.WithLabelValues(toTier).Inc()
}

func RecordAppointmentScheduled(appointmentType string) {
	appointmentsScheduled.WithLabelValues(appointmentType).Inc()
}

func RecordAppointmentConflict() { appointmentConflicts.Inc() }

func RecordAppointmentStatusChange(to string) {
	appointmentStatusChanged.WithLabelValues(to).Inc()
}

func RecordComplianceRun(duration time.Duration, overdue int) {
	complianceRuns.Inc()
	complianceRunDuration.Observe(duration.Seconds())
	complianceOverdueCases.Set(float64(overdue))
}

func RecordEscalation(eventType, tier string) {
	escalationsDispatched.WithLabelValues(eventType, tier).Inc()
}

func RecordNotificationFailure(provider string) {
	notificationFailures.WithLabelValues(provider).Inc()
}

// Middleware records HTTP metrics for each request
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
	})
}

// Handler returns the prometheus metrics endpoint handler
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
