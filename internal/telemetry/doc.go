// Package telemetry wires OpenTelemetry tracing and metrics for enforcer.
//
// Telemetry is off by default. When enabled, spans and metrics are exported
// over OTLP (gRPC or http/protobuf) to a collector; a failure to build an
// exporter degrades to no-op providers instead of failing the run.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer("enforcer/pipeline").Start(ctx, "pipeline.language")
//	defer span.End()
//
// Tests use NewTestTelemetry, which records spans in memory and exposes a
// manual metric reader.
package telemetry
