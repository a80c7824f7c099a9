package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wricardo/wargame/game/engine"
)

const instrumentationName = "github.com/wricardo/wargame/game/service"

// telemetry holds the instruments of the service. Both the meter and the tracer come from
// the global providers and are no-ops unless main installs real ones.
type telemetry struct {
	tracer   trace.Tracer
	applied  metric.Int64Counter
	desynced metric.Int64Counter
	created  metric.Int64Counter
}

func newTelemetry() (*telemetry, error) {
	m := otel.Meter(instrumentationName)
	t := &telemetry{tracer: otel.Tracer(instrumentationName)}

	var err error
	t.applied, err = m.Int64Counter(
		"wargame.events.applied",
		metric.WithDescription("Events applied to session state"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating applied counter: %w", err)
	}

	t.desynced, err = m.Int64Counter(
		"wargame.events.desync",
		metric.WithDescription("Events rejected as a state desync"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating desync counter: %w", err)
	}

	t.created, err = m.Int64Counter(
		"wargame.sessions.created",
		metric.WithDescription("Sessions created"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	return t, nil
}

func kindAttr(kind engine.EventKind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", string(kind)))
}

func (t *telemetry) recordApplied(ctx context.Context, kind engine.EventKind) {
	t.applied.Add(ctx, 1, kindAttr(kind))
}

func (t *telemetry) recordDesync(ctx context.Context, kind engine.EventKind) {
	t.desynced.Add(ctx, 1, kindAttr(kind))
}
