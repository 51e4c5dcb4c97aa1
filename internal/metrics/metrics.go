package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the prometheus sink for admission decisions.
type Recorder struct {
	admissions *prometheus.CounterVec
	rejections *prometheus.CounterVec
	consent    *prometheus.CounterVec
	replays    prometheus.Counter
	tsMissing  prometheus.Counter
	blocks     *prometheus.CounterVec
	failovers  prometheus.Counter
	published  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_admissions_total",
				Help: "Beacons by terminal outcome and the stage that decided it",
			},
			[]string{"outcome", "stage"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_rejections_total",
				Help: "Dropped or rejected beacons by reason",
			},
			[]string{"reason"},
		),
		consent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_consent_decisions_total",
				Help: "Consent filter results, one per admitted beacon",
			},
			[]string{"outcome"},
		),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacon_replay_detections_total",
			Help: "Beacons dropped because their nonce was already live",
		}),
		tsMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacon_timestamp_missing_total",
			Help: "Beacons that arrived without a client timestamp header",
		}),
		blocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_anomaly_blocks_total",
				Help: "Shops blocked after repeated anomalies",
			},
			[]string{"reason"},
		),
		failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacon_counter_store_failovers_total",
			Help: "Switches from the shared counter store to local counters",
		}),
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_conversion_jobs_published_total",
				Help: "Conversion jobs handed to the message broker",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_admission_duration_seconds",
				Help:    "Time spent deciding a beacon",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		r.admissions,
		r.rejections,
		r.consent,
		r.replays,
		r.tsMissing,
		r.blocks,
		r.failovers,
		r.published,
		r.duration,
	)
	return r
}

func (r *Recorder) Admission(outcome, stage string, elapsed time.Duration) {
	r.admissions.WithLabelValues(outcome, stage).Inc()
	r.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (r *Recorder) Rejection(reason string) {
	r.rejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) ConsentDecision(outcome string) {
	r.consent.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ReplayDetected() {
	r.replays.Inc()
}

func (r *Recorder) TimestampMissing() {
	r.tsMissing.Inc()
}

func (r *Recorder) AnomalyBlock(reason string) {
	r.blocks.WithLabelValues(reason).Inc()
}

func (r *Recorder) CounterFailover() {
	r.failovers.Inc()
}

func (r *Recorder) ConversionPublished(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	r.published.WithLabelValues(status).Inc()
}
