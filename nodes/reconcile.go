package nodes

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Descriptor is one element of a polled snapshot list.
type Descriptor interface {
	SelfURL() (string, error)
}

// DisassociationReporter is implemented by descriptors that carry the
// server's "disassociated" status flag.
type DisassociationReporter interface {
	Disassociated() bool
}

// Callbacks connect a reconciliation pass to the domain handlers.
type Callbacks struct {
	// Erase removes a child that vanished from the snapshot. Defaults to
	// Registry.EraseNode.
	Erase func(key string)
	// CreateOrFetch materializes a missing child or refreshes a selected one
	// in place. It must be idempotent.
	CreateOrFetch func(url string, d Descriptor)
	// UpdateLink refreshes the summary label of an existing child. Optional.
	UpdateLink func(link *Link, d Descriptor)
}

// Pass summarizes one reconciliation pass.
type Pass struct {
	Skipped   bool
	Erased    int
	Created   int
	Refreshed int
	Invalid   int
}

// Engine diffs snapshot lists against a Registry.
type Engine struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewEngine builds an engine operating on registry.
func NewEngine(registry *Registry, logger zerolog.Logger) *Engine {
	return &Engine{registry: registry, logger: logger.With().Str("component", "reconcile").Logger()}
}

// Registry returns the registry the engine operates on.
func (e *Engine) Registry() *Registry {
	return e.registry
}

type snapshotEntry struct {
	key string
	url string
	d   Descriptor
}

// Reconcile synchronizes the children of parentKey in class against
// snapshot. A hidden parent is left untouched. The only error returned is
// ErrUnknownParent; malformed entries are logged and skipped.
func (e *Engine) Reconcile(parentKey string, snapshot []Descriptor, class Class, cb Callbacks) (Pass, error) {
	var pass Pass
	parent, ok := e.registry.nodes[parentKey]
	if !ok {
		return pass, fmt.Errorf("%w: %s", ErrUnknownParent, parentKey)
	}
	if parent.Content.Hidden {
		pass.Skipped = true
		return pass, nil
	}
	erase := cb.Erase
	if erase == nil {
		erase = e.registry.EraseNode
	}

	entries := make([]snapshotEntry, 0, len(snapshot))
	wanted := make(map[string]struct{}, len(snapshot))
	for i, d := range snapshot {
		if d == nil {
			pass.Invalid++
			e.logger.Warn().Str("parent", parentKey).Int("index", i).Msg("nil snapshot entry skipped")
			continue
		}
		url, err := d.SelfURL()
		if err != nil {
			pass.Invalid++
			e.logger.Warn().Err(err).Str("parent", parentKey).Int("index", i).Msg("snapshot entry without self url skipped")
			continue
		}
		key, err := KeyFromURL(url)
		if err != nil {
			pass.Invalid++
			e.logger.Warn().Err(err).Str("parent", parentKey).Int("index", i).Msg("snapshot entry skipped")
			continue
		}
		if _, dup := wanted[key]; dup {
			e.logger.Debug().Str("parent", parentKey).Str("key", key).Msg("duplicate snapshot entry skipped")
			continue
		}
		wanted[key] = struct{}{}
		entries = append(entries, snapshotEntry{key: key, url: url, d: d})
	}

	l := parent.ensureList(class)

	// Erase from the back so the positions of unvisited children stay valid.
	for i := len(l.children) - 1; i >= 0; i-- {
		if i >= len(l.children) {
			continue
		}
		key := l.children[i]
		if _, keep := wanted[key]; keep {
			continue
		}
		erase(key)
		pass.Erased++
		if l.indexOf(key) >= 0 {
			// The callback did not detach the child; do it here so the list
			// mirrors the snapshot.
			e.registry.Remove(key)
		}
	}

	l.placeholder.Visible = len(entries) == 0 && len(l.children) == 0

	for _, entry := range entries {
		child, exists := e.registry.nodes[entry.key]
		if exists && child.Parent != parentKey {
			e.logger.Warn().Str("parent", parentKey).Str("key", entry.key).Str("owner", child.Parent).Msg("key registered under another parent")
			pass.Invalid++
			continue
		}
		if !exists {
			if cb.CreateOrFetch != nil {
				cb.CreateOrFetch(entry.url, entry.d)
			}
			pass.Created++
			continue
		}
		if cb.UpdateLink != nil {
			cb.UpdateLink(child.Link, entry.d)
		}
		if reporter, ok := entry.d.(DisassociationReporter); ok {
			child.Link.Disassociated = reporter.Disassociated()
		}
		if child.Link.Selected && cb.CreateOrFetch != nil {
			cb.CreateOrFetch(entry.url, entry.d)
			pass.Refreshed++
		}
	}

	if class.Kind == KindTab && len(l.children) > 0 && !e.registry.anySelected(l) {
		e.registry.show(l.children[0])
	}
	return pass, nil
}
