package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"visa-slot-backend/internal/model"
)

const namespace = "visad"

// Collector exposes engine activity as Prometheus metrics.
type Collector struct {
	cyclesTotal        *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	slotsFoundTotal    prometheus.Counter
	bookingsTotal      *prometheus.CounterVec
	captchaTotal       *prometheus.CounterVec
	captchaTilesTotal  prometheus.Counter
	credentialAttempts *prometheus.CounterVec
	systemState        *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		cyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Check cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one check cycle.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		slotsFoundTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_found_total",
			Help:      "Appointment slots discovered on the portal.",
		}),
		bookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by resulting slot status.",
		}, []string{"status"}),
		captchaTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_resolutions_total",
			Help:      "CAPTCHA resolutions by result.",
		}, []string{"solved"}),
		captchaTilesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_tiles_processed_total",
			Help:      "CAPTCHA tiles run through text recognition.",
		}),
		credentialAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_attempts_total",
			Help:      "Portal sessions per credential outcome.",
		}, []string{"success"}),
		systemState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_state",
			Help:      "1 for the current lifecycle state, 0 otherwise.",
		}, []string{"state"}),
	}
}

func (c *Collector) ObserveCycle(outcome string, d time.Duration) {
	c.cyclesTotal.WithLabelValues(outcome).Inc()
	c.cycleDuration.Observe(d.Seconds())
}

func (c *Collector) AddSlotsFound(n int) {
	if n > 0 {
		c.slotsFoundTotal.Add(float64(n))
	}
}

func (c *Collector) ObserveBooking(status model.SlotStatus) {
	c.bookingsTotal.WithLabelValues(string(status)).Inc()
}

func (c *Collector) ObserveCaptcha(solved bool, processedTiles int) {
	c.captchaTotal.WithLabelValues(strconv.FormatBool(solved)).Inc()
	c.captchaTilesTotal.Add(float64(processedTiles))
}

func (c *Collector) ObserveCredentialAttempt(success bool) {
	c.credentialAttempts.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// SetState flips the state gauge so exactly one label reads 1.
func (c *Collector) SetState(current model.SystemStatus) {
	for _, s := range []model.SystemStatus{model.StatusStopped, model.StatusRunning, model.StatusPaused, model.StatusError} {
		v := 0.0
		if s == current {
			v = 1
		}
		c.systemState.WithLabelValues(string(s)).Set(v)
	}
}
