package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ServerMetrics holds metric instruments for HTTP server telemetry.
// Initialize once at server startup and reuse throughout the application lifecycle.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter     // Total HTTP requests
	RequestDuration metric.Float64Histogram // HTTP request latency
	ErrorCounter    metric.Int64Counter     // Total HTTP errors (5xx)
}

// NewServerMetrics creates a new ServerMetrics instance with pre-configured instruments.
func NewServerMetrics() (*ServerMetrics, error) {
	meter := otel.Meter("authzapi/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// Buckets: 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s
	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records an HTTP request with method, route, status, and duration.
// Call this at the end of each request handler (typically in middleware).
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status_code", status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)

	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// DecisionMetrics holds metric instruments for permission check telemetry.
type DecisionMetrics struct {
	DecisionCounter  metric.Int64Counter     // Total permission decisions
	DecisionDuration metric.Float64Histogram // Decision latency (fresh evaluations)
	CacheHits        metric.Int64Counter     // Decisions served from cache
	CacheMisses      metric.Int64Counter     // Decisions evaluated fresh
	FallbackCounter  metric.Int64Counter     // Decisions resolved via the static clearance table
}

// NewDecisionMetrics creates metric instruments for permission check telemetry.
func NewDecisionMetrics() (*DecisionMetrics, error) {
	meter := otel.Meter("authzapi/decisions")

	decisionCounter, err := meter.Int64Counter(
		"access.decision.count",
		metric.WithDescription("Total number of permission decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	decisionDuration, err := meter.Float64Histogram(
		"access.decision.duration",
		metric.WithDescription("Permission decision duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"access.decision.cache.hit.count",
		metric.WithDescription("Permission decisions served from the decision cache"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"access.decision.cache.miss.count",
		metric.WithDescription("Permission decisions evaluated against the database"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	fallbackCounter, err := meter.Int64Counter(
		"access.decision.fallback.count",
		metric.WithDescription("Permission decisions resolved via the static clearance table because no catalog row existed"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	return &DecisionMetrics{
		DecisionCounter:  decisionCounter,
		DecisionDuration: decisionDuration,
		CacheHits:        cacheHits,
		CacheMisses:      cacheMisses,
		FallbackCounter:  fallbackCounter,
	}, nil
}

// RecordDecision records a completed permission decision.
func (d *DecisionMetrics) RecordDecision(ctx context.Context, result, reason string, cached bool, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("access.result", result),
		attribute.String("access.reason", reason),
		attribute.Bool("access.cached", cached),
	)

	d.DecisionCounter.Add(ctx, 1, attrs)
	d.DecisionDuration.Record(ctx, durationMs, attrs)

	if cached {
		d.CacheHits.Add(ctx, 1)
	} else {
		d.CacheMisses.Add(ctx, 1)
	}
}

// RecordFallback records a decision that had no catalog row and was
// resolved against the static clearance table.
func (d *DecisionMetrics) RecordFallback(ctx context.Context, permission string) {
	d.FallbackCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("access.permission", permission),
	))
}

// GrantMetrics holds metric instruments for grant lifecycle telemetry.
type GrantMetrics struct {
	GrantCounter metric.Int64Counter // Grant and revoke operations
	SweptCounter metric.Int64Counter // Grants transitioned by the background sweep
}

// NewGrantMetrics creates metric instruments for grant lifecycle telemetry.
func NewGrantMetrics() (*GrantMetrics, error) {
	meter := otel.Meter("authzapi/grants")

	grantCounter, err := meter.Int64Counter(
		"access.grant.operation.count",
		metric.WithDescription("Total number of grant and revoke operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	sweptCounter, err := meter.Int64Counter(
		"access.grant.swept.count",
		metric.WithDescription("Grants transitioned by the expiry sweep"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, err
	}

	return &GrantMetrics{
		GrantCounter: grantCounter,
		SweptCounter: sweptCounter,
	}, nil
}

// RecordOperation records a grant or revoke call with its outcome
// (created, noop, denied, error).
func (g *GrantMetrics) RecordOperation(ctx context.Context, operation, outcome string) {
	g.GrantCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant.operation", operation),
		attribute.String("grant.outcome", outcome),
	))
}

// RecordSwept records grants transitioned by one sweep pass.
func (g *GrantMetrics) RecordSwept(ctx context.Context, transition string, count int64) {
	if count == 0 {
		return
	}
	g.SweptCounter.Add(ctx, count, metric.WithAttributes(
		attribute.String("grant.transition", transition),
	))
}

// AuditMetrics holds metric instruments for the asynchronous audit pipeline.
type AuditMetrics struct {
	Enqueued     metric.Int64Counter       // Entries accepted into the queue
	Written      metric.Int64Counter       // Entries persisted
	DeadLettered metric.Int64Counter       // Entries parked after a failed write
	Redriven     metric.Int64Counter       // Dead-letter entries successfully retried
	Dropped      metric.Int64Counter       // Entries lost to dead-letter overflow
	QueueDepth   metric.Int64UpDownCounter // Entries waiting for the writer
}

// NewAuditMetrics creates metric instruments for audit pipeline telemetry.
func NewAuditMetrics() (*AuditMetrics, error) {
	meter := otel.Meter("authzapi/audit")

	enqueued, err := meter.Int64Counter(
		"audit.entry.enqueued.count",
		metric.WithDescription("Audit entries accepted into the write queue"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	written, err := meter.Int64Counter(
		"audit.entry.written.count",
		metric.WithDescription("Audit entries persisted to the store"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	deadLettered, err := meter.Int64Counter(
		"audit.entry.dead_lettered.count",
		metric.WithDescription("Audit entries parked after a failed write"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	redriven, err := meter.Int64Counter(
		"audit.entry.redriven.count",
		metric.WithDescription("Dead-letter audit entries successfully retried"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter(
		"audit.entry.dropped.count",
		metric.WithDescription("Audit entries lost to dead-letter overflow"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64UpDownCounter(
		"audit.queue.depth",
		metric.WithDescription("Audit entries waiting for the writer"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuditMetrics{
		Enqueued:     enqueued,
		Written:      written,
		DeadLettered: deadLettered,
		Redriven:     redriven,
		Dropped:      dropped,
		QueueDepth:   queueDepth,
	}, nil
}

// EntryEnqueued records an entry accepted into the queue.
func (a *AuditMetrics) EntryEnqueued(ctx context.Context) {
	a.Enqueued.Add(ctx, 1)
	a.QueueDepth.Add(ctx, 1)
}

// EntryWritten records an entry leaving the queue after a successful write.
func (a *AuditMetrics) EntryWritten(ctx context.Context) {
	a.Written.Add(ctx, 1)
	a.QueueDepth.Add(ctx, -1)
}

// EntryDeadLettered records an entry leaving the queue for the dead-letter buffer.
func (a *AuditMetrics) EntryDeadLettered(ctx context.Context) {
	a.DeadLettered.Add(ctx, 1)
	a.QueueDepth.Add(ctx, -1)
}

// EntryRedriven records a dead-letter entry successfully written on retry.
func (a *AuditMetrics) EntryRedriven(ctx context.Context) {
	a.Redriven.Add(ctx, 1)
}

// EntryDropped records an entry lost to dead-letter overflow.
func (a *AuditMetrics) EntryDropped(ctx context.Context) {
	a.Dropped.Add(ctx, 1)
}

// Common metric attribute keys for the access engine
const (
	// HTTP attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"

	// Decision attributes
	AttrDecisionResult = "access.result"
	AttrDecisionReason = "access.reason"

	// Grant attributes
	AttrGrantOperation  = "grant.operation"
	AttrGrantOutcome    = "grant.outcome"
	AttrGrantTransition = "grant.transition"
)
