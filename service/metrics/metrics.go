package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Submission Metrics
	submissionsTotal        *prometheus.CounterVec
	submissionAttemptsTotal *prometheus.CounterVec

	// Orchestration Metrics
	orchestrationsTotal   *prometheus.CounterVec
	orchestrationDuration *prometheus.HistogramVec
	accountsProvisioned   *prometheus.CounterVec
	registryOperations    *prometheus.CounterVec

	// Quote service Metrics
	quoteCallsTotal   *prometheus.CounterVec
	quoteCallDuration *prometheus.HistogramVec

	// Workflow Metrics
	finalityWorkflowDuration   *prometheus.HistogramVec
	finalityWorkflowExecutions *prometheus.CounterVec
	activityDuration           *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_submissions_total",
				Help: "Terminal transaction submission outcomes",
			},
			[]string{"purpose", "status"},
		),
		submissionAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_submission_attempts_total",
				Help: "Individual submission attempts by outcome",
			},
			[]string{"purpose", "outcome"},
		),

		orchestrationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_orchestrations_total",
				Help: "Total number of transfer and swap orchestrations by result",
			},
			[]string{"kind", "result"},
		),
		orchestrationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_orchestration_duration_seconds",
				Help:    "Duration of transfer and swap orchestrations in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),
		accountsProvisioned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_accounts_provisioned_total",
				Help: "Prerequisite accounts checked or created during orchestration",
			},
			[]string{"account_type", "action"},
		),
		registryOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_registry_operations_total",
				Help: "Referral registry operations by backend and result",
			},
			[]string{"backend", "operation", "result"},
		),

		quoteCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quote_api_calls_total",
				Help: "Total number of quote/swap service calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		quoteCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quote_api_call_duration_seconds",
				Help:    "Duration of quote/swap service calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),

		finalityWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finality_workflow_duration_seconds",
				Help:    "Duration of finality tracking workflows in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		finalityWorkflowExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finality_workflow_executions_total",
				Help: "Total number of finality tracking workflow executions",
			},
			[]string{"status"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "activity_duration_seconds",
				Help:    "Duration of workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 10, 30},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Submission metric helpers

// RecordSubmission records a terminal submission outcome ("confirmed" or "failed").
func (m *Metrics) RecordSubmission(purpose, status string) {
	m.submissionsTotal.WithLabelValues(purpose, status).Inc()
}

// RecordSubmissionAttempt records one send attempt and how it ended
// (e.g. "sent", "transient", "expired", "rejected").
func (m *Metrics) RecordSubmissionAttempt(purpose, outcome string) {
	m.submissionAttemptsTotal.WithLabelValues(purpose, outcome).Inc()
}

// Orchestration metric helpers

// RecordOrchestration records the result and duration of a transfer or swap.
func (m *Metrics) RecordOrchestration(kind, result string, duration float64) {
	m.orchestrationsTotal.WithLabelValues(kind, result).Inc()
	m.orchestrationDuration.WithLabelValues(kind).Observe(duration)
}

// RecordAccountProvisioned records an account check ("exists") or creation ("created").
func (m *Metrics) RecordAccountProvisioned(accountType, action string) {
	m.accountsProvisioned.WithLabelValues(accountType, action).Inc()
}

// RecordRegistryOperation records a referral registry operation.
func (m *Metrics) RecordRegistryOperation(backend, operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.registryOperations.WithLabelValues(backend, operation, result).Inc()
}

// Quote service metric helpers

// RecordQuoteCall records a quote/swap service call with duration.
func (m *Metrics) RecordQuoteCall(operation, status string, duration float64) {
	m.quoteCallsTotal.WithLabelValues(operation, status).Inc()
	m.quoteCallDuration.WithLabelValues(operation).Observe(duration)
}

// Workflow metric helpers

// RecordWorkflowDuration records finality workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	m.finalityWorkflowDuration.WithLabelValues(status).Observe(duration)
	m.finalityWorkflowExecutions.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
