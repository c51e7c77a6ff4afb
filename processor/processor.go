package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/thejerf/suture/v4"

	"github.com/timzifer/tsconsole/config"
	"github.com/timzifer/tsconsole/console"
	"github.com/timzifer/tsconsole/internal/logging"
	"github.com/timzifer/tsconsole/internal/reload"
	"github.com/timzifer/tsconsole/liveview"
	"github.com/timzifer/tsconsole/remote"
	"github.com/timzifer/tsconsole/telemetry"
)

const watchInterval = time.Second

// ReloadFunc represents a function that reloads the processor configuration.
type ReloadFunc func(ctx context.Context) error

// Option configures the processor during construction.
type Option func(*settings) error

type settings struct {
	config            *config.Config
	configPath        string
	registerReload    func(ReloadFunc)
	logger            zerolog.Logger
	customLogger      bool
	telemetry         telemetry.Collector
	telemetryProvided bool
	api               remote.API
	liveViewListen    string
	enableLiveView    bool
}

// Processor runs the console of one stream processing server together with
// its pollers and the live view, and rebuilds them when the configuration
// changes.
type Processor struct {
	mu sync.Mutex

	config     *config.Config
	configPath string

	collector telemetry.Collector
	api       remote.API

	customLogger bool
	baseLogger   zerolog.Logger

	liveViewForced bool
	liveViewListen string

	watcher  *reload.Watcher
	reloadCh chan chan error

	current *runtimeState
	running bool
}

type runtimeState struct {
	cfg        *config.Config
	logger     zerolog.Logger
	cleanup    func()
	console    *console.Console
	liveView   *liveview.Server
	supervisor *suture.Supervisor
}

func (r *runtimeState) close() {
	r.console.Loop().Close()
	r.cleanup()
}

// change is a configuration accepted for the next runtime. done is set for
// changes requested through Reload.
type change struct {
	cfg   *config.Config
	files []string
	done  chan error
}

func (c *change) reply(err error) {
	if c.done != nil {
		c.done <- err
	}
}

// New constructs a processor with the supplied options.
func New(ctx context.Context, opts ...Option) (*Processor, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cfg := settings{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		if cfg.configPath == "" {
			return nil, errors.New("configuration path required")
		}
		loaded, err := config.Load(cfg.configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		cfg.config = loaded
	}

	if !cfg.telemetryProvided {
		collector, err := newTelemetryCollector(cfg.config.Telemetry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
			cfg.telemetry = telemetry.Noop()
		} else {
			cfg.telemetry = collector
		}
	}

	proc := &Processor{
		config:         cfg.config,
		configPath:     cfg.configPath,
		collector:      cfg.telemetry,
		api:            cfg.api,
		customLogger:   cfg.customLogger,
		baseLogger:     cfg.logger,
		liveViewForced: cfg.enableLiveView,
		liveViewListen: cfg.liveViewListen,
	}

	runtime, err := proc.buildRuntime(cfg.config)
	if err != nil {
		return nil, err
	}
	proc.current = runtime

	if cfg.configPath != "" {
		proc.reloadCh = make(chan chan error)
	}

	if err := proc.initWatcher(cfg.config); err != nil {
		runtime.close()
		return nil, err
	}

	if cfg.registerReload != nil {
		cfg.registerReload(proc.Reload)
	}

	return proc, nil
}

// Console returns the console of the active runtime.
func (p *Processor) Console() *console.Console {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current.console
}

// LiveView returns the live view of the active runtime, nil when disabled.
func (p *Processor) LiveView() *liveview.Server {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current.liveView
}

// Config returns the configuration of the active runtime.
func (p *Processor) Config() *config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// Run supervises the console until the context is cancelled or the
// supervisor stops with an error. Configuration changes, requested through
// Reload or detected by the watcher, replace the whole runtime.
func (p *Processor) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return errors.New("processor not initialized")
	}
	if p.running {
		p.mu.Unlock()
		return errors.New("processor already running")
	}
	p.running = true
	current := p.current
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		if p.current == current {
			p.current = nil
		}
		p.mu.Unlock()
	}()

	for {
		runCtx, cancelRun := context.WithCancel(ctx)
		errCh := current.supervisor.ServeBackground(runCtx)
		next, err := p.awaitChange(ctx, current, errCh)
		cancelRun()
		if next == nil {
			current.close()
			return err
		}
		if err := <-errCh; err != nil && !isStopped(err) {
			current.logger.Error().Err(err).Msg("supervisor stopped during reload")
		}
		current.close()

		runtime, err := p.buildRuntime(next.cfg)
		if err != nil {
			next.reply(err)
			return err
		}
		p.install(runtime, next.cfg)
		current = runtime

		current.logger.Info().Strs("files", next.files).Msg("configuration reloaded")
		next.reply(nil)
		for _, file := range next.files {
			p.collector.IncHotReload(file)
		}
	}
}

// awaitChange blocks until a new configuration was accepted. A nil change
// means the runtime ended and Run returns err.
func (p *Processor) awaitChange(ctx context.Context, current *runtimeState, errCh <-chan error) (*change, error) {
	p.mu.Lock()
	watcher := p.watcher
	reloadCh := p.reloadCh
	p.mu.Unlock()

	var ticks <-chan time.Time
	if watcher != nil {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			if err := <-errCh; err != nil && !isStopped(err) {
				return nil, err
			}
			return nil, ctx.Err()
		case err := <-errCh:
			return nil, err
		case done := <-reloadCh:
			cfg, err := p.loadConfig()
			if err != nil {
				current.logger.Error().Err(err).Msg("reloaded configuration invalid")
				done <- err
				continue
			}
			return &change{cfg: cfg, done: done}, nil
		case <-ticks:
			files, err := watcher.Check()
			if err != nil {
				current.logger.Error().Err(err).Msg("failed to check configuration changes")
			}
			if len(files) == 0 {
				continue
			}
			cfg, err := p.loadConfig()
			if err != nil {
				current.logger.Error().Err(err).Strs("files", files).Msg("failed to reload configuration")
				continue
			}
			return &change{cfg: cfg, files: files}, nil
		}
	}
}

func (p *Processor) install(runtime *runtimeState, cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = runtime
	p.config = cfg
	if err := p.initWatcher(cfg); err != nil {
		runtime.logger.Error().Err(err).Msg("failed to update configuration watcher")
	}
}

// Reload rebuilds the console using the latest configuration from disk.
func (p *Processor) Reload(ctx context.Context) error {
	p.mu.Lock()
	running := p.running
	reloadCh := p.reloadCh
	p.mu.Unlock()

	if !running {
		cfg, err := p.loadConfig()
		if err != nil {
			return err
		}
		return p.swapRuntime(cfg)
	}
	if reloadCh == nil {
		return errors.New("reload not supported without configuration path")
	}

	done := make(chan error, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case reloadCh <- done:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Close releases resources managed by the processor.
func (p *Processor) Close() {
	p.mu.Lock()
	current := p.current
	p.current = nil
	p.mu.Unlock()

	if current != nil {
		current.close()
	}
}

func (p *Processor) swapRuntime(cfg *config.Config) error {
	runtime, err := p.buildRuntime(cfg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.current
	p.current = runtime
	p.config = cfg
	err = p.initWatcher(cfg)
	p.mu.Unlock()
	if err != nil {
		runtime.close()
		return err
	}

	if old != nil {
		old.close()
	}
	return nil
}

func (p *Processor) buildRuntime(cfg *config.Config) (*runtimeState, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	runtime := &runtimeState{cfg: cfg, cleanup: func() {}}
	var levels logging.Levels
	if p.customLogger {
		runtime.logger = p.baseLogger
		parsed, err := logging.ParseLevels(cfg.Logging.Components)
		if err != nil {
			return nil, err
		}
		levels = parsed
	} else {
		logger, parsed, cleanup, err := logging.Setup(cfg.Logging)
		if err != nil {
			return nil, err
		}
		runtime.logger = logger
		runtime.cleanup = cleanup
		levels = parsed
	}
	log.Logger = runtime.logger

	api := p.api
	if api == nil {
		client, err := remote.NewHTTPClient(cfg,
			remote.WithLogger(levels.Component(runtime.logger, "remote")),
			remote.WithTelemetry(p.collector),
		)
		if err != nil {
			runtime.cleanup()
			return nil, err
		}
		api = client
	}

	c, err := console.New(cfg, api,
		console.WithLogger(levels.Component(runtime.logger, "console")),
		console.WithPollerLogger(levels.Component(runtime.logger, "poller")),
		console.WithTelemetry(p.collector),
	)
	if err != nil {
		runtime.cleanup()
		return nil, err
	}
	runtime.console = c

	name := "tsconsole"
	if cfg.Name != "" {
		name = cfg.Name
	}
	sup := newSupervisor(name, levels.Component(runtime.logger, "supervisor"))
	sup.Add(c)
	for _, poller := range c.Pollers() {
		sup.Add(poller)
	}

	if p.liveViewForced || cfg.LiveView.Enabled {
		listen := p.liveViewListen
		if listen == "" {
			listen = cfg.LiveViewListen()
		}
		opts := []liveview.Option{liveview.WithLogger(levels.Component(runtime.logger, "liveview"))}
		if handler := metricsHandler(p.collector); handler != nil {
			opts = append(opts, liveview.WithMetrics(handler))
		}
		runtime.liveView = liveview.New(listen, c, opts...)
		sup.Add(runtime.liveView)
	}
	runtime.supervisor = sup
	return runtime, nil
}

func (p *Processor) loadConfig() (*config.Config, error) {
	if p.configPath == "" {
		return nil, errors.New("configuration path not configured")
	}
	cfg, err := config.Load(p.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Processor) initWatcher(cfg *config.Config) error {
	if p.configPath == "" {
		p.watcher = nil
		return nil
	}
	if !cfg.HotReload {
		p.watcher = nil
		return nil
	}
	if p.watcher == nil {
		watcher, err := reload.NewWatcher(p.configPath, cfg)
		if err != nil {
			return err
		}
		p.watcher = watcher
		return nil
	}
	return p.watcher.Update(p.configPath, cfg)
}

func isStopped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
