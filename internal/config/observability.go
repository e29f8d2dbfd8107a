package config

// ObservabilityConfig holds observability configuration. OTelEnabled
// defaults to disabled, since env.Load has no notion of a boolean default
// distinct from its zero value; set JOBQ_OTEL_ENABLED=true to opt in.
type ObservabilityConfig struct {
	OTelEnabled bool   `env:"JOBQ_OTEL_ENABLED"`
	ServiceName string `env:"JOBQ_OTEL_SERVICE_NAME"`
}
