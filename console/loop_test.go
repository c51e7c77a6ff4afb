package console

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/tsconsole/config"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	loop := NewLoop(4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loop.Serve(ctx) }()

	var seen []int
	for i := 0; i < 3; i++ {
		i := i
		require.True(t, loop.Post(func() { seen = append(seen, i) }))
	}
	require.NoError(t, loop.Do(ctx, func() {}))
	require.Equal(t, []int{0, 1, 2}, seen)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestLoopSurvivesPanics(t *testing.T) {
	loop := NewLoop(0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Serve(ctx) }()

	require.True(t, loop.Post(func() { panic("boom") }))
	ran := false
	require.NoError(t, loop.Do(ctx, func() { ran = true }))
	require.True(t, ran)
}

func TestLoopClose(t *testing.T) {
	loop := NewLoop(1, zerolog.Nop())
	loop.Close()
	loop.Close()

	require.False(t, loop.Post(func() {}))
	err := loop.Do(context.Background(), func() {})
	require.Error(t, err)
	require.NoError(t, loop.Serve(context.Background()))
}

func TestLoopDoHonoursContext(t *testing.T) {
	loop := NewLoop(1, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := loop.Do(ctx, func() {})
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPollerLoadsOnlyVisibleTabs(t *testing.T) {
	api := newStubAPI()
	c := newTestConsole(t, api, nil)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)
	before := api.getCount(cpuStatsURL)

	c.poll(KindSystem, systemKey, systemURL, logger)
	require.Equal(t, before+1, api.getCount(cpuStatsURL))
	streamProcs := api.getCount(streamProcsURL)
	c.poll(KindStreamProcs, streamProcsKey, streamProcsURL, logger)
	require.Equal(t, streamProcs, api.getCount(streamProcsURL))
	require.Contains(t, buf.String(), `"tab":"stream_procs"`)

	click(t, c, streamProcsKey)
	c.poll(KindSystem, systemKey, systemURL, logger)
	require.Equal(t, before+1, api.getCount(cpuStatsURL))
	streamProcs = api.getCount(streamProcsURL)
	c.poll(KindStreamProcs, streamProcsKey, streamProcsURL, logger)
	require.Equal(t, streamProcs+1, api.getCount(streamProcsURL))
}

func TestPollersUseOwnLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Server: config.ServerConfig{URL: "http://srv:8088"}}
	c, err := New(cfg, newStubAPI(),
		WithLoop(newInlineLoop(zerolog.Nop())),
		WithPollerLogger(zerolog.New(&buf).With().Str("component", "poller").Logger()),
	)
	require.NoError(t, err)
	c.start(context.Background())

	poller := c.Pollers()[0]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, poller.Serve(ctx), context.Canceled)
	require.Contains(t, buf.String(), `"component":"poller"`)
	require.Contains(t, buf.String(), "poller started")
}

func TestPollers(t *testing.T) {
	c := newTestConsole(t, newStubAPI(), nil)
	pollers := c.Pollers()
	require.Len(t, pollers, 2)
	require.Equal(t, "poller/stream_procs", pollers[0].String())
	require.Equal(t, 700*time.Millisecond, pollers[0].interval)
	require.Equal(t, "poller/system", pollers[1].String())
	require.Equal(t, time.Second, pollers[1].interval)
}

func TestPollerServe(t *testing.T) {
	var ticks atomic.Int32
	p := &Poller{name: "test", interval: 5 * time.Millisecond, tick: func() { ticks.Add(1) }}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
