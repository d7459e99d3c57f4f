package core

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts a span per Source operation.
type Tracer interface {
	Start(c context.Context, name string) (context.Context, Spaner)
}

// Spaner is a started span.
type Spaner interface {
	SetAttributesString(attrs ...StringAttr)
	Error(err error)
	End()
}

type StringAttr struct {
	Name  string
	Value string
}

const tracerName = "github.com/dosco/mongosource/core"

type otelTracer struct {
	tracer trace.Tracer
}

func newOtelTracer(tp trace.TracerProvider) otelTracer {
	return otelTracer{tracer: tp.Tracer(tracerName)}
}

func (t otelTracer) Start(c context.Context, name string) (context.Context, Spaner) {
	c, span := t.tracer.Start(c, name)
	return c, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) SetAttributesString(attrs ...StringAttr) {
	kv := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		kv[i] = attribute.String(a.Name, a.Value)
	}
	s.span.SetAttributes(kv...)
}

func (s otelSpan) Error(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) End() {
	s.span.End()
}

// spanStart starts the span of an operation on collection.
func (s *Source) spanStart(c context.Context, name, collection string) (context.Context, Spaner) {
	c, span := s.trace.Start(c, name)
	span.SetAttributesString(StringAttr{"db.collection", collection})
	return c, span
}
