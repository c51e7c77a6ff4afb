// Package console mirrors the resources of a stream processing server into a
// nodes.Registry and applies operator actions through the REST API.
package console

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/tsconsole/config"
	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
	"github.com/timzifer/tsconsole/remote"
	"github.com/timzifer/tsconsole/telemetry"
)

var (
	systemKey      = mustKey(systemURL)
	streamProcsKey = mustKey(streamProcsURL)
)

func mustKey(url string) string {
	key, err := nodes.KeyFromURL(url)
	if err != nil {
		panic(err)
	}
	return key
}

// Console keeps the resource tree of one server in sync. The registry is only
// touched on the goroutine running the event loop.
type Console struct {
	loop      *Loop
	api       remote.API
	registry  *nodes.Registry
	engine    *nodes.Engine
	session   *Session
	handlers  map[ResourceKind]Handler
	actions   map[ResourceKind]map[string]action
	labels    *Labeler
	logger    zerolog.Logger
	telemetry telemetry.Collector

	pollLogger *zerolog.Logger

	prefix              string
	host                string
	streamProcsInterval time.Duration
	systemInterval      time.Duration

	// loop owned
	ctx      context.Context
	inflight map[string]*fetch
	esKinds  map[string]model.ProcessorKind

	revision atomic.Uint64
	subsMu   sync.Mutex
	subs     map[chan uint64]struct{}
}

// Option customises a Console.
type Option func(*Console)

// WithLogger sets the console logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

// WithPollerLogger sets the logger of the tab pollers. It defaults to the
// console logger.
func WithPollerLogger(logger zerolog.Logger) Option {
	return func(c *Console) {
		c.pollLogger = &logger
	}
}

// WithTelemetry sets the collector receiving reconciliation metrics.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(c *Console) {
		if collector != nil {
			c.telemetry = collector
		}
	}
}

// WithLoop replaces the event loop.
func WithLoop(loop *Loop) Option {
	return func(c *Console) {
		if loop != nil {
			c.loop = loop
		}
	}
}

// New builds a console for the server described by cfg.
func New(cfg *config.Config, api remote.API, opts ...Option) (*Console, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if api == nil {
		return nil, fmt.Errorf("api client is required")
	}
	c := &Console{
		api:                 api,
		registry:            nodes.NewRegistry(),
		session:             newSession(),
		logger:              zerolog.Nop(),
		telemetry:           telemetry.Noop(),
		prefix:              cfg.APIPrefix(),
		streamProcsInterval: cfg.StreamProcsInterval(),
		systemInterval:      cfg.SystemInterval(),
		ctx:                 context.Background(),
		inflight:            make(map[string]*fetch),
		esKinds:             make(map[string]model.ProcessorKind),
		subs:                make(map[chan uint64]struct{}),
	}
	if parsed, err := url.Parse(cfg.BaseURL()); err == nil {
		c.host = parsed.Host
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.loop == nil {
		c.loop = NewLoop(0, c.logger)
	}
	if c.pollLogger == nil {
		c.pollLogger = &c.logger
	}
	labels, err := NewLabeler(cfg.Labels, c.logger)
	if err != nil {
		return nil, err
	}
	c.labels = labels
	c.engine = nodes.NewEngine(c.registry, c.logger)
	c.handlers = c.buildHandlers()
	c.actions = c.buildActions()
	return c, nil
}

// Loop returns the event loop of the console.
func (c *Console) Loop() *Loop {
	return c.loop
}

// Serve creates the main tabs and runs the event loop until ctx is done.
func (c *Console) Serve(ctx context.Context) error {
	c.start(ctx)
	return c.loop.Serve(ctx)
}

func (c *Console) String() string {
	return "console"
}

func (c *Console) start(ctx context.Context) {
	c.ctx = ctx
	for _, tab := range []struct {
		key   string
		label string
	}{
		{systemKey, "System"},
		{streamProcsKey, "Stream processors"},
	} {
		if c.registry.Exists(tab.key) {
			continue
		}
		if _, err := c.registry.CreateNode(tab.key, nodes.RootKey, mainTabsClass, "", tab.label, false); err != nil {
			c.logger.Error().Err(err).Str("key", tab.key).Msg("create main tab")
		}
	}
	c.load(KindSystem, systemURL, nodes.RootKey)
	c.load(KindStreamProcs, streamProcsURL, nodes.RootKey)
	c.changed()
}

// Tree returns a snapshot of the whole resource tree.
func (c *Console) Tree(ctx context.Context) (nodes.View, error) {
	var view nodes.View
	err := c.loop.Do(ctx, func() {
		view = c.registry.Snapshot()
	})
	return view, err
}

// Revision increases on every change of the tree.
func (c *Console) Revision() uint64 {
	return c.revision.Load()
}

// Subscribe returns a channel receiving the latest revision after changes.
// Slow readers only see the most recent value.
func (c *Console) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()
	return ch, func() {
		c.subsMu.Lock()
		delete(c.subs, ch)
		c.subsMu.Unlock()
	}
}

func (c *Console) changed() {
	rev := c.revision.Add(1)
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- rev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- rev:
			default:
			}
		}
	}
}

// Click selects or toggles the node at key and refreshes it when it became
// visible.
func (c *Console) Click(ctx context.Context, key string) error {
	var err error
	if doErr := c.loop.Do(ctx, func() {
		err = c.click(key)
	}); doErr != nil {
		return doErr
	}
	return err
}

func (c *Console) click(key string) error {
	if err := c.registry.ShowOrToggle(key); err != nil {
		return err
	}
	c.changed()
	if key != nodes.RootKey && c.registry.Visible(key) {
		c.refresh(key)
	}
	return nil
}

// refresh reloads the resource behind key in place.
func (c *Console) refresh(key string) {
	node, ok := c.registry.Get(key)
	if !ok {
		return
	}
	resource := nodes.URLFromKey(key)
	kind, ok := kindOfURL(resource)
	if !ok {
		return
	}
	if kind == KindDVBService {
		// services are drawn from their processor's payload
		c.refresh(node.Parent)
		return
	}
	c.load(kind, resource, node.Parent)
}

// fetch is a load in flight. A fetch turns stale when its node or its
// parent left the tree while the request ran; stale results are dropped.
type fetch struct {
	kind   ResourceKind
	parent string
	stale  bool
}

// load fetches url off the loop and draws the result below parentKey. Only
// one fetch per url is in flight at a time.
func (c *Console) load(kind ResourceKind, resource, parentKey string) {
	h, ok := c.handlers[kind]
	if !ok {
		return
	}
	if f, busy := c.inflight[resource]; busy {
		if f.stale {
			f.stale = false
			f.parent = parentKey
		}
		return
	}
	f := &fetch{kind: kind, parent: parentKey}
	c.inflight[resource] = f
	ctx := c.ctx
	c.loop.Go(func() {
		res, err := h.Fetch(ctx, resource)
		c.loop.Post(func() {
			delete(c.inflight, resource)
			if f.stale {
				c.logger.Debug().Str("url", resource).Str("kind", kind.String()).Msg("dropped result of removed resource")
				return
			}
			if err != nil {
				c.logger.Warn().Err(err).Str("url", resource).Str("kind", kind.String()).Msg("fetch failed")
				return
			}
			if err := h.Draw(f.parent, resource, res); err != nil {
				c.logger.Warn().Err(err).Str("url", resource).Str("kind", kind.String()).Msg("draw failed")
				return
			}
			c.changed()
		})
	})
}

// dropUnlisted marks the fetches below parentKey stale whose resource is
// no longer part of the class list in snapshot.
func (c *Console) dropUnlisted(parentKey string, class nodes.Class, snapshot []nodes.Descriptor) {
	if len(c.inflight) == 0 {
		return
	}
	listed := make(map[string]struct{}, len(snapshot))
	for _, d := range snapshot {
		if resource, err := d.SelfURL(); err == nil {
			listed[resource] = struct{}{}
		}
	}
	for resource, f := range c.inflight {
		if f.parent != parentKey || c.handlers[f.kind].Class().Tag != class.Tag {
			continue
		}
		if _, ok := listed[resource]; !ok {
			f.stale = true
		}
	}
}

// entryRef is a list entry whose self href has been reduced to a resource
// path.
type entryRef struct {
	model.Entry
	url string
}

func (r entryRef) SelfURL() (string, error) {
	if r.url == "" {
		return "", model.ErrNoSelfLink
	}
	return r.url, nil
}

func (c *Console) refs(entries []model.Entry) []nodes.Descriptor {
	out := make([]nodes.Descriptor, 0, len(entries))
	for _, entry := range entries {
		ref := entryRef{Entry: entry}
		if self, err := entry.SelfURL(); err == nil {
			ref.url = remote.ResourcePath(self, c.prefix)
		}
		out = append(out, ref)
	}
	return out
}

// reconcile synchronises one child list and records the pass.
func (c *Console) reconcile(parentKey string, class nodes.Class, snapshot []nodes.Descriptor, create func(url string, d nodes.Descriptor), label func(link *nodes.Link, entry model.Entry)) {
	cb := nodes.Callbacks{
		Erase:         c.erase,
		CreateOrFetch: create,
	}
	if label != nil {
		cb.UpdateLink = func(link *nodes.Link, d nodes.Descriptor) {
			if ref, ok := d.(entryRef); ok {
				label(link, ref.Entry)
			}
		}
	}
	pass, err := c.engine.Reconcile(parentKey, snapshot, class, cb)
	if err == nil && !pass.Skipped {
		c.dropUnlisted(parentKey, class, snapshot)
	}
	outcome := telemetry.OutcomeApplied
	switch {
	case err != nil:
		outcome = telemetry.OutcomeFailed
		c.logger.Warn().Err(err).Str("parent", parentKey).Str("class", class.Tag).Msg("reconcile failed")
	case pass.Skipped:
		outcome = telemetry.OutcomeSkipped
	}
	c.telemetry.ObserveReconcile(class.Tag, outcome, pass.Created, pass.Erased, pass.Invalid)
	c.telemetry.SetTreeSize(c.registry.Len())
}

// reconcileKind reconciles entries whose children are fetched by the handler
// of kind.
func (c *Console) reconcileKind(parentKey string, kind ResourceKind, entries []model.Entry) {
	h := c.handlers[kind]
	c.reconcile(parentKey, h.Class(), c.refs(entries), func(resource string, _ nodes.Descriptor) {
		c.load(kind, resource, parentKey)
	}, h.UpdateLink)
}

// erase drops key with its subtree, the state kept for it and the fetches
// that would draw into it.
func (c *Console) erase(key string) {
	erased := make(map[string]struct{})
	c.registry.Walk(key, func(n *nodes.Node) bool {
		erased[n.Key] = struct{}{}
		delete(c.esKinds, n.Key)
		c.session.Forget(n.Key)
		return true
	})
	c.registry.EraseNode(key)
	for resource, f := range c.inflight {
		if _, ok := erased[f.parent]; ok {
			f.stale = true
			continue
		}
		if k, err := nodes.KeyFromURL(resource); err == nil {
			if _, ok := erased[k]; ok {
				f.stale = true
			}
		}
	}
}

// ensureNode creates key below parentKey unless it exists. It reports the
// node content and whether it was created.
func (c *Console) ensureNode(key, parentKey string, class nodes.Class, scheme, label string, selected bool) (*nodes.Content, bool, error) {
	if node, ok := c.registry.Get(key); ok {
		return node.Content, false, nil
	}
	content, err := c.registry.CreateNode(key, parentKey, class, scheme, label, selected)
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// ErrUnknownAction is returned for actions a resource does not support.
var ErrUnknownAction = errors.New("unknown action")

// Action applies the operator action name to the resource at key. Transport
// failures are returned unchanged; the tree is refreshed on success.
func (c *Console) Action(ctx context.Context, key, name string, values url.Values) error {
	var (
		t      target
		exists bool
	)
	if err := c.loop.Do(ctx, func() {
		node, ok := c.registry.Get(key)
		if !ok || key == nodes.RootKey {
			return
		}
		exists = true
		t = target{key: key, parent: node.Parent, url: nodes.URLFromKey(key), esKind: c.esKinds[key]}
		t.kind, _ = kindOfURL(t.url)
	}); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", nodes.ErrUnknownNode, key)
	}
	act, ok := c.actions[t.kind][name]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrUnknownAction, name, t.kind)
	}
	if values == nil {
		values = url.Values{}
	}
	if err := act.run(ctx, t, values); err != nil {
		c.logger.Info().Err(err).Str("key", key).Str("action", name).Msg("action failed")
		return err
	}
	c.logger.Info().Str("key", key).Str("action", name).Msg("action applied")
	refreshKey := key
	if act.refresh != nil {
		refreshKey = act.refresh(t)
	}
	c.loop.Post(func() {
		c.refresh(refreshKey)
	})
	return nil
}

// Actions lists the action names supported by the resource at key.
func (c *Console) Actions(key string) []string {
	kind, ok := kindOfURL(nodes.URLFromKey(key))
	if !ok {
		return nil
	}
	names := make([]string, 0, len(c.actions[kind]))
	for name := range c.actions[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
