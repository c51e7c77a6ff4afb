package console

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/tsconsole/nodes"
)

// Poller periodically reloads one main tab while it is visible. It runs as a
// supervised service next to the event loop.
type Poller struct {
	name     string
	interval time.Duration
	tick     func()
	logger   zerolog.Logger
}

// Serve implements suture.Service.
func (p *Poller) Serve(ctx context.Context) error {
	p.logger.Debug().Str("tab", p.name).Dur("interval", p.interval).Msg("poller started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Poller) String() string {
	return "poller/" + p.name
}

// Pollers returns the pollers keeping the system statistics and the
// demultiplexer list up to date.
func (c *Console) Pollers() []*Poller {
	return []*Poller{
		c.poller(KindStreamProcs, streamProcsKey, streamProcsURL, c.streamProcsInterval),
		c.poller(KindSystem, systemKey, systemURL, c.systemInterval),
	}
}

func (c *Console) poller(kind ResourceKind, key, resource string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	logger := *c.pollLogger
	return &Poller{
		name:     kind.String(),
		interval: interval,
		logger:   logger,
		tick: func() {
			c.loop.Post(func() {
				c.poll(kind, key, resource, logger)
			})
		},
	}
}

// poll loads resource when the tab at key is shown.
func (c *Console) poll(kind ResourceKind, key, resource string, logger zerolog.Logger) {
	if !c.registry.Visible(key) {
		logger.Trace().Str("tab", kind.String()).Msg("tab hidden, poll skipped")
		return
	}
	c.load(kind, resource, nodes.RootKey)
}
