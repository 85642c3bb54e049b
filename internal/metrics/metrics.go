package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/on-cure/oncare/internal/errors"
)

// Metrics holds all Prometheus metrics for the onCare client.
//
// The Record* helpers are safe to call on a nil *Metrics so components can
// take metrics as an optional dependency.
type Metrics struct {
	// Command execution metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec

	// Session provider metrics
	SessionTransitions     *prometheus.CounterVec
	SessionInitializations *prometheus.CounterVec
	SessionAuthenticated   prometheus.Gauge

	// Realtime channel metrics
	ChannelOpens    *prometheus.CounterVec
	ChannelCloses   *prometheus.CounterVec
	ChannelMessages *prometheus.CounterVec
	ChannelOpen     prometheus.Gauge

	// Backend API metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec

	// Wallet metrics
	WalletTips *prometheus.CounterVec

	// Errors by code from structured errors
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncare_command_executions_total",
				Help: "Total number of command executions",
			},
			[]string{"command", "status"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oncare_command_duration_seconds",
				Help:    "Command execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncare_session_transitions_total",
				Help: "Session state transitions",
			},
			[]string{"from", "to", "cause"},
		),
		SessionInitializations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncare_session_initializations_total",
				Help: "Initial session checks by outcome",
			},
			[]string{"outcome"},
		),
		SessionAuthenticated: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "oncare_session_authenticated",
				Help: "1 while a user is logged in",
			},
		),

		ChannelOpens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncare_channel_opens_total",
				Help: "Realtime channel open attempts by result",
			},
			[]string{"result"},
		),
		ChannelCloses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncare_channel_closes_total",
				Help: "Realtime channel closures by reason",
			},
			[]string{"reason"},
		),
		ChannelMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncare_channel_messages_total",
				Help: "Push messages received on the realtime channel",
			},
			[]string{"type"},
		),
		ChannelOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "oncare_channel_open",
				Help: "1 while the realtime channel is open",
			},
		),

		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncare_api_requests_total",
				Help: "Backend API requests",
			},
			[]string{"method", "route", "status"},
		),
		APILatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oncare_api_request_duration_seconds",
				Help:    "Backend API request latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),

		WalletTips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncare_wallet_tips_total",
				Help: "Tips sent from the wallet by result",
			},
			[]string{"result"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncare_errors_total",
				Help: "Errors by error code",
			},
			[]string{"code"},
		),
	}
}

// RecordCommand records a finished CLI command.
func (m *Metrics) RecordCommand(command string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		m.RecordError(err)
	}
	m.CommandExecutions.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordTransition records a session state change.
func (m *Metrics) RecordTransition(from, to, cause string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to, cause).Inc()
	if to == "authenticated" {
		m.SessionAuthenticated.Set(1)
	} else {
		m.SessionAuthenticated.Set(0)
	}
}

// RecordInitialization records the outcome of the initial session check.
func (m *Metrics) RecordInitialization(outcome string) {
	if m == nil {
		return
	}
	m.SessionInitializations.WithLabelValues(outcome).Inc()
}

// RecordChannelOpen records a dial attempt.
func (m *Metrics) RecordChannelOpen(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ChannelOpens.WithLabelValues("error").Inc()
		m.RecordError(err)
		return
	}
	m.ChannelOpens.WithLabelValues("success").Inc()
	m.ChannelOpen.Set(1)
}

// RecordChannelClose records a channel closing for reason.
func (m *Metrics) RecordChannelClose(reason string) {
	if m == nil {
		return
	}
	m.ChannelCloses.WithLabelValues(reason).Inc()
	m.ChannelOpen.Set(0)
}

// RecordChannelMessage counts a received push message.
func (m *Metrics) RecordChannelMessage(msgType string) {
	if m == nil {
		return
	}
	if msgType == "" {
		msgType = "unknown"
	}
	m.ChannelMessages.WithLabelValues(msgType).Inc()
}

// RecordAPIRequest records one backend round trip. status is 0 when no
// response was received.
func (m *Metrics) RecordAPIRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "none"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.APIRequests.WithLabelValues(method, route, label).Inc()
	m.APILatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordTip records a wallet tip attempt.
func (m *Metrics) RecordTip(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.WalletTips.WithLabelValues("error").Inc()
		m.RecordError(err)
		return
	}
	m.WalletTips.WithLabelValues("success").Inc()
}

// RecordError counts err under its error code, or "uncoded".
func (m *Metrics) RecordError(err error) {
	if m == nil || err == nil {
		return
	}
	code := string(errors.CodeOf(err))
	if code == "" {
		code = "uncoded"
	}
	m.Errors.WithLabelValues(code).Inc()
}
