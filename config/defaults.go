package config

import "time"

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Runner:     DefaultRunnerConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Mongo:      DefaultMongoConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultRunnerConfig returns the default traversal bounds.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxSteps:         1000,
		NodeTimeout:      2 * time.Minute,
		CheckpointEvery:  0,
		DeleteOnComplete: false,
	}
}

// DefaultCheckpointConfig returns the default checkpoint settings.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Backend:   "memory",
		MaxPerRun: 20,
		TTL:       7 * 24 * time.Hour,
	}
}

// DefaultRedisConfig returns the default Redis settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig returns the default SQL settings.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "agentgraph.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultMongoConfig returns the default MongoDB settings.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database:   "agentgraph",
		Collection: "checkpoints",
		Timeout:    10 * time.Second,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentgraph",
		SampleRate:   1.0,
	}
}
