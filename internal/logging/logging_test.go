package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/tsconsole/config"
)

func TestSetupJSONLevelAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, levels, cleanup, err := setup(config.LoggingConfig{Level: "WARN"}, &buf)
	require.NoError(t, err)
	defer cleanup()
	require.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	require.Empty(t, levels)

	poller := Component(logger, "poller")
	poller.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	poller.Warn().Msg("kept")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "poller", line["component"])
	require.Equal(t, "tsconsole", line["app"])
	require.Equal(t, "kept", line["message"])
}

func TestComponentLevelsOverrideBase(t *testing.T) {
	var buf bytes.Buffer
	logger, levels, cleanup, err := setup(config.LoggingConfig{
		Level:      "warn",
		Components: map[string]string{"Remote": "debug", "liveview": "error"},
	}, &buf)
	require.NoError(t, err)
	defer cleanup()

	remote := levels.Component(logger, "remote")
	require.Equal(t, zerolog.DebugLevel, remote.GetLevel())
	remote.Debug().Msg("request")
	require.Contains(t, buf.String(), `"component":"remote"`)

	buf.Reset()
	view := levels.Component(logger, "liveview")
	view.Warn().Msg("slow client")
	require.Zero(t, buf.Len())

	console := levels.Component(logger, "console")
	require.Equal(t, zerolog.WarnLevel, console.GetLevel())
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, _, _, err := Setup(config.LoggingConfig{Level: "chatty"})
	require.Error(t, err)

	_, _, _, err = Setup(config.LoggingConfig{Components: map[string]string{"console": "loud"}})
	require.ErrorContains(t, err, `"console"`)
}

func TestSetupRequiresLokiURL(t *testing.T) {
	_, _, _, err := Setup(config.LoggingConfig{Loki: config.LokiConfig{Enabled: true}})
	require.Error(t, err)
}

func TestLokiLabels(t *testing.T) {
	require.Equal(t, model.LabelSet{"app": "tsconsole"}, lokiLabels(nil))
	labels := lokiLabels(map[string]string{"site": "lab", "bad-name": "x"})
	require.Equal(t, model.LabelSet{"site": "lab"}, labels)
}

func TestLokiWriterLabelsLevelAndComponent(t *testing.T) {
	var got []model.LabelSet
	lw := &lokiWriter{
		labels: model.LabelSet{"site": "lab"},
		push: func(labels model.LabelSet, _ time.Time, _ string) error {
			got = append(got, labels)
			return nil
		},
	}
	logger := zerolog.New(zerolog.MultiLevelWriter(lw))

	poller := Component(logger, "poller")
	poller.Warn().Msg("stream_procs tick skipped")
	logger.Info().Msg("plain")
	_, err := lw.Write([]byte("  \n"))
	require.NoError(t, err)

	require.Equal(t, []model.LabelSet{
		{"site": "lab", "level": "warn", "component": "poller"},
		{"site": "lab", "level": "info"},
	}, got)
	require.Equal(t, model.LabelSet{"site": "lab"}, lw.labels)
}
