package metrics

import (
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smiles"

var (
	once sync.Once

	appointmentCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_created_total",
			Help:      "Count of appointments booked.",
		},
	)

	appointmentUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_updated_total",
			Help:      "Count of appointments updated.",
		},
	)

	appointmentCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_cancelled_total",
			Help:      "Count of appointments cancelled.",
		},
	)

	appointmentDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_deleted_total",
			Help:      "Count of appointments deleted.",
		},
	)

	appointmentConflict = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_conflict_total",
			Help:      "Count of bookings rejected by a resource conflict.",
		},
		[]string{"resource"},
	)

	appointmentRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_rejected_total",
			Help:      "Count of appointment operations rejected by reason.",
		},
		[]string{"reason"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			appointmentCreated, appointmentUpdated, appointmentCancelled,
			appointmentDeleted, appointmentConflict, appointmentRejected,
		)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

func IncCreated()   { appointmentCreated.Inc() }
func IncUpdated()   { appointmentUpdated.Inc() }
func IncCancelled() { appointmentCancelled.Inc() }
func IncDeleted()   { appointmentDeleted.Inc() }

func IncConflict(resource string) {
	appointmentConflict.WithLabelValues(resource).Inc()
}

func IncRejected(reason string) {
	appointmentRejected.WithLabelValues(reason).Inc()
}
