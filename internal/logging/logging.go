package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/grafana/loki-client-go/loki"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"github.com/timzifer/tsconsole/config"
)

// Levels maps a component name (remote, console, poller, liveview,
// supervisor) to the level its sub-logger logs at.
type Levels map[string]zerolog.Level

// Setup creates the base logger and the per-component levels of one
// runtime. The returned cleanup flushes and stops the Loki client when one
// is used.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, Levels, func(), error) {
	return setup(cfg, os.Stdout)
}

func setup(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, Levels, func(), error) {
	level, err := parseLevel(cfg.Level, zerolog.InfoLevel)
	if err != nil {
		return zerolog.Logger{}, nil, nil, fmt.Errorf("parse log level: %w", err)
	}
	levels, err := ParseLevels(cfg.Components)
	if err != nil {
		return zerolog.Logger{}, nil, nil, err
	}

	console := out
	if strings.EqualFold(cfg.Format, "text") {
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{console}
	cleanup := func() {}
	if cfg.Loki.Enabled {
		lw, stop, err := newLokiWriter(cfg.Loki)
		if err != nil {
			return zerolog.Logger{}, nil, nil, err
		}
		writers = append(writers, lw)
		cleanup = stop
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Str("app", "tsconsole").Logger().
		Level(level)
	return logger, levels, cleanup, nil
}

// ParseLevels validates the configured component levels.
func ParseLevels(configured map[string]string) (Levels, error) {
	levels := make(Levels, len(configured))
	for name, value := range configured {
		parsed, err := parseLevel(value, zerolog.NoLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log level of component %q: %w", name, err)
		}
		if parsed != zerolog.NoLevel {
			levels[strings.ToLower(strings.TrimSpace(name))] = parsed
		}
	}
	return levels, nil
}

func parseLevel(value string, fallback zerolog.Level) (zerolog.Level, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback, nil
	}
	return zerolog.ParseLevel(value)
}

// Component derives the sub-logger of one part of the console. A level
// configured for the component replaces the level of logger.
func (l Levels) Component(logger zerolog.Logger, name string) zerolog.Logger {
	sub := logger.With().Str("component", name).Logger()
	if level, ok := l[name]; ok {
		sub = sub.Level(level)
	}
	return sub
}

// Component derives the sub-logger of one part of the console without
// level overrides.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return Levels(nil).Component(logger, name)
}

func newLokiWriter(cfg config.LokiConfig) (*lokiWriter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("loki url is required")
	}
	lokiCfg, err := loki.NewDefaultConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare loki config: %w", err)
	}
	client, err := loki.New(lokiCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create loki client: %w", err)
	}
	lw := &lokiWriter{push: client.Handle, labels: lokiLabels(cfg.Labels)}
	return lw, client.Stop, nil
}

func lokiLabels(configured map[string]string) model.LabelSet {
	labels := model.LabelSet{}
	for k, v := range configured {
		name := model.LabelName(k)
		if !name.IsValid() {
			continue
		}
		labels[name] = model.LabelValue(v)
	}
	if len(labels) == 0 {
		labels["app"] = "tsconsole"
	}
	return labels
}

// lokiWriter pushes every entry as one line of a stream labelled with the
// configured labels plus the level and the component of the entry.
type lokiWriter struct {
	push   func(model.LabelSet, time.Time, string) error
	labels model.LabelSet
}

func (l *lokiWriter) Write(p []byte) (int, error) {
	return l.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter.
func (l *lokiWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	entry := strings.TrimSpace(string(p))
	if entry == "" {
		return len(p), nil
	}
	return len(p), l.push(l.streamLabels(level, p), time.Now(), entry)
}

func (l *lokiWriter) streamLabels(level zerolog.Level, p []byte) model.LabelSet {
	labels := l.labels.Clone()
	if level != zerolog.NoLevel {
		labels["level"] = model.LabelValue(level.String())
	}
	var fields struct {
		Component string `json:"component"`
	}
	if err := json.Unmarshal(p, &fields); err == nil && fields.Component != "" {
		labels["component"] = model.LabelValue(fields.Component)
	}
	return labels
}
