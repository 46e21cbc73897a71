// Package observe holds the process-wide Prometheus metrics.
package observe

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sampling and analysis
	WindowsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_windows_processed_total",
			Help: "Total number of sample windows analyzed",
		},
	)

	WindowsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_windows_discarded_total",
			Help: "Total number of sample windows discarded as invalid",
		},
	)

	VolumeEnvelope = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "barkd_volume_envelope",
			Help: "Current smoothed microphone volume in sample units",
		},
	)

	// Classification
	BarkEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_bark_events_total",
			Help: "Total number of confirmed bark events",
		},
	)

	ClassifierRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barkd_classifier_rejections_total",
			Help: "Total number of candidates rejected, by reason",
		},
		[]string{"reason"},
	)

	// Deterrent
	BuzzerActivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_buzzer_activations_total",
			Help: "Total number of buzzer activations, including restarts",
		},
	)

	BuzzerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "barkd_buzzer_active",
			Help: "1 while the buzzer is sounding",
		},
	)

	BuzzerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_buzzer_errors_total",
			Help: "Total number of buzzer pin write failures",
		},
	)

	// Reporting
	PendingBarks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "barkd_pending_barks",
			Help: "Barks waiting for a successful uplink",
		},
	)

	ReportsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_reports_sent_total",
			Help: "Total number of report batches delivered",
		},
	)

	ReportAttemptsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_report_attempts_failed_total",
			Help: "Total number of failed report transmissions",
		},
	)

	ReportsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_reports_dropped_total",
			Help: "Total number of report batches dropped after exhausting retries",
		},
	)

	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_notifications_sent_total",
			Help: "Total number of push notifications delivered",
		},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barkd_notifications_failed_total",
			Help: "Total number of push notifications not delivered, by reason",
		},
		[]string{"reason"},
	)

	// Remote settings
	SettingsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_settings_applied_total",
			Help: "Total number of remote threshold updates applied",
		},
	)

	SettingsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_settings_rejected_total",
			Help: "Total number of remote threshold updates rejected as invalid",
		},
	)

	SettingsFetchFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barkd_settings_fetch_failed_total",
			Help: "Total number of failed remote settings fetches",
		},
	)
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
