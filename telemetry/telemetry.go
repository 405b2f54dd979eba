// Package telemetry wires the datadog tracer and profiler behind one
// manager so the service entrypoint can start and stop both with a single
// call.
package telemetry

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	ddotel "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentelemetry"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"
)

type Manager struct {
	tracerProvider       *ddotel.TracerProvider
	profilerShutdownFunc func()
}

func New(enableTrace, enableProfiler bool) (*Manager, error) {
	tm := &Manager{}

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	if enableTrace {
		tm.tracerProvider = ddotel.NewTracerProvider(tracer.WithRuntimeMetrics())
		otel.SetTracerProvider(tm.tracerProvider)
	}

	if enableProfiler {
		err := profiler.Start(
			profiler.WithProfileTypes(
				profiler.CPUProfile,
				profiler.HeapProfile,
			),
		)
		if err != nil {
			return nil, errors.Join(err, tm.Shutdown())
		}
		tm.profilerShutdownFunc = profiler.Stop
	}

	return tm, nil
}

// Shutdown stops whichever of the tracer and profiler were started.
func (tm *Manager) Shutdown() error {
	var err error
	if tm.tracerProvider != nil {
		err = tm.tracerProvider.Shutdown()
	}
	if tm.profilerShutdownFunc != nil {
		tm.profilerShutdownFunc()
	}
	return err
}
