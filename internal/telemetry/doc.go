// Package telemetry centralizes OpenTelemetry SDK initialization: it builds
// the TracerProvider and MeterProvider the engine's tracing middleware
// reports through. When telemetry is disabled the global providers stay noop
// and no external connection is made.
package telemetry
