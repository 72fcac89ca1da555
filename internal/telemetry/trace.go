package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span for a service operation.
// This is a convenience wrapper around otel.Tracer().Start() with common patterns.
//
// Usage in services:
//
//	ctx, span := telemetry.StartSpan(ctx, "authzapi/services/authz", "authz.Validate",
//	    attribute.String(telemetry.AttrPrincipalID, principalID),
//	    attribute.String(telemetry.AttrPermission, permission),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and sets the span status to error.
// This is a convenience wrapper to ensure consistent error recording.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span with optional attributes.
// Use for business events like cache hits, fallback resolutions, denials.
//
// Example:
//
//	telemetry.AddEvent(span, "decision.denied",
//	    attribute.String("reason", "insufficient clearance"),
//	)
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Common attribute keys for access engine spans
const (
	// Decision attributes
	AttrPrincipalID = "access.principal_id"
	AttrPermission  = "access.permission"
	AttrResult      = "access.result"
	AttrReason      = "access.reason"
	AttrCached      = "access.cached"
	AttrFallback    = "access.fallback"

	// Grant attributes
	AttrGrantID   = "grant.id"
	AttrGrantedBy = "grant.granted_by"
	AttrRevokedBy = "grant.revoked_by"

	// Audit pipeline attributes
	AttrAuditAction      = "audit.action_type"
	AttrAuditCorrelation = "audit.correlation_id"

	// Catalog attributes
	AttrCatalogSource = "catalog.source"
)
