package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts a span on the named tracer.
//
//	ctx, span := telemetry.StartSpan(ctx, "mappaiam/services/iam", "iam.GetIdentity",
//	    attribute.String(telemetry.AttrAuthUID, authUID),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks the span failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Attribute keys shared by IAM spans.
const (
	AttrAuthUID        = "iam.auth_uid"
	AttrUserID         = "iam.user_id"
	AttrForce          = "iam.force"
	AttrCacheResult    = "iam.cache.result"
	AttrLookupStep     = "iam.lookup.step"
	AttrRoleCount      = "iam.role.count"
	AttrPermCount      = "iam.permission.count"
	AttrPermissionCode = "iam.permission.code"
	AttrRoleCode       = "iam.role.code"
)
