package processor

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/timzifer/tsconsole/config"
	"github.com/timzifer/tsconsole/remote"
	"github.com/timzifer/tsconsole/telemetry"
)

// WithLogger provides a custom logger instance for the processor.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.logger = logger
		cfg.customLogger = true
		return nil
	}
}

// WithConfigPath configures the processor to load configuration data from the provided path.
func WithConfigPath(path string, register func(ReloadFunc)) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.configPath = strings.TrimSpace(path)
		cfg.registerReload = register
		return nil
	}
}

// WithConfig supplies an already loaded configuration instance.
func WithConfig(cfgData *config.Config) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.config = cfgData
		return nil
	}
}

// WithLiveView enables the live view on listen regardless of the
// configuration. An empty listen address keeps the configured one.
func WithLiveView(listen string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.enableLiveView = true
		cfg.liveViewListen = strings.TrimSpace(listen)
		return nil
	}
}

// WithTelemetry injects a collector instance overriding the default configuration-based behaviour.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if collector == nil {
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
		cfg.telemetryProvided = true
		return nil
	}
}

// WithAPI replaces the HTTP client built from the configuration.
func WithAPI(api remote.API) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.api = api
		return nil
	}
}
