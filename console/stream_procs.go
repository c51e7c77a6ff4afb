package console

import (
	"context"
	"fmt"

	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
)

// streamProcsHandler keeps the demultiplexer tabs in sync with the server's
// processor list.
type streamProcsHandler struct {
	c *Console
}

func (h *streamProcsHandler) Kind() ResourceKind { return KindStreamProcs }
func (h *streamProcsHandler) Class() nodes.Class { return mainTabsClass }
func (h *streamProcsHandler) SchemeTag() string  { return "" }

func (h *streamProcsHandler) UpdateLink(*nodes.Link, model.Entry) {}

func (h *streamProcsHandler) Fetch(ctx context.Context, resource string) (Resource, error) {
	return fetchInto[model.StreamProcs](ctx, h.c.api, resource)
}

func (h *streamProcsHandler) Draw(_, resource string, res Resource) error {
	list, err := payload[model.StreamProcs](res)
	if err != nil {
		return err
	}
	key, err := nodes.KeyFromURL(resource)
	if err != nil {
		return err
	}
	if !h.c.registry.Exists(key) {
		return fmt.Errorf("%w: %s", nodes.ErrUnknownNode, key)
	}
	h.c.reconcileKind(key, KindDemuxer, list.StreamProcs)
	return nil
}
