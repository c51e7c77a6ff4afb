package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
	"github.com/timzifer/tsconsole/remote"
)

// Resource is a fetched representation: the typed payload and its raw fields
// for label expressions.
type Resource struct {
	Value  any
	Fields map[string]any
}

// Handler renders one resource kind.
type Handler interface {
	Kind() ResourceKind
	Class() nodes.Class
	SchemeTag() string
	// Fetch runs off the event loop.
	Fetch(ctx context.Context, url string) (Resource, error)
	// Draw creates or updates the node for url below parentKey and
	// reconciles its child lists. It runs on the event loop.
	Draw(parentKey, url string, res Resource) error
	// UpdateLink refreshes the link of an existing node from its list entry.
	UpdateLink(link *nodes.Link, entry model.Entry)
}

func (c *Console) buildHandlers() map[ResourceKind]Handler {
	handlers := []Handler{
		&systemHandler{c: c},
		&streamProcsHandler{c: c},
		&demuxerHandler{c: c},
		&programHandler{c: c},
		&programProcHandler{c: c},
		&esHandler{c: c},
		&esProcHandler{c: c, variants: esProcVariants()},
		&serviceHandler{c: c},
	}
	out := make(map[ResourceKind]Handler, len(handlers))
	for _, h := range handlers {
		out[h.Kind()] = h
	}
	return out
}

// kindOfURL resolves the resource kind from the collection that holds the
// last path element.
func kindOfURL(resource string) (ResourceKind, bool) {
	switch resource {
	case systemURL:
		return KindSystem, true
	case streamProcsURL:
		return KindStreamProcs, true
	}
	segments := strings.Split(strings.Trim(resource, "/"), "/")
	if len(segments) < 2 {
		return 0, false
	}
	switch "/" + segments[len(segments)-2] + "/" {
	case demuxerScheme:
		return KindDemuxer, true
	case programScheme:
		return KindProgram, true
	case programProcScheme:
		return KindProgramProcessor, true
	case esScheme:
		return KindElementaryStream, true
	case esProcScheme:
		return KindESProcessor, true
	case serviceScheme:
		return KindDVBService, true
	}
	return 0, false
}

func fetchInto[T any](ctx context.Context, api remote.API, resource string) (Resource, error) {
	var raw json.RawMessage
	if err := api.Get(ctx, resource, &raw); err != nil {
		return Resource{}, err
	}
	value := new(T)
	fields := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, value); err != nil {
			return Resource{}, fmt.Errorf("decode %s: %w", resource, err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return Resource{}, fmt.Errorf("decode %s fields: %w", resource, err)
		}
	}
	return Resource{Value: value, Fields: fields}, nil
}

func payload[T any](res Resource) (*T, error) {
	value, ok := res.Value.(*T)
	if !ok || value == nil {
		var zero T
		return nil, fmt.Errorf("unexpected payload %T, want *%T", res.Value, zero)
	}
	return value, nil
}

// idIn returns the id following scheme in resource or "".
func idIn(resource, scheme string) string {
	id, _ := nodes.IDInURL(resource, scheme)
	return id
}

func hexLabel(n int64) string {
	return fmt.Sprintf("%d (0x%x)", n, n)
}
