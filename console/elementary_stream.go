package console

import (
	"context"
	"strconv"

	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
)

const descriptorUnavailable = "- Not available -"

// esHandler renders an elementary stream and, when its program is processed,
// the processor attached to it.
type esHandler struct {
	c *Console
}

func (h *esHandler) Kind() ResourceKind { return KindElementaryStream }
func (h *esHandler) Class() nodes.Class { return esClass }
func (h *esHandler) SchemeTag() string  { return esScheme }

func esLabel(pid int64, streamType string) string {
	label := "PID " + strconv.FormatInt(pid, 10) + "(0x" + strconv.FormatInt(pid, 16) + ") "
	if streamType != "" {
		return label + "; stream type: " + streamType
	}
	return label + "N/A"
}

func (h *esHandler) UpdateLink(link *nodes.Link, entry model.Entry) {
	pid, _ := entry.Int("es_PID")
	link.Label = h.c.labels.Label(KindElementaryStream, entry.Fields(), esLabel(pid, entry.String("stream_type")))
}

func (h *esHandler) Fetch(ctx context.Context, resource string) (Resource, error) {
	return fetchInto[model.ElementaryStream](ctx, h.c.api, resource)
}

func (h *esHandler) Draw(parentKey, resource string, res Resource) error {
	es, err := payload[model.ElementaryStream](res)
	if err != nil {
		return err
	}
	key, err := nodes.KeyFromURL(resource)
	if err != nil {
		return err
	}
	label := h.c.labels.Label(KindElementaryStream, res.Fields, esLabel(es.PID, string(es.StreamType)))
	content, created, err := h.c.ensureNode(key, parentKey, esClass, esScheme, label, false)
	if err != nil {
		return err
	}
	if created || !content.Hidden {
		content.SetRow("Stream type", string(es.StreamType))
		content.SetRow("Elementary stream PID", strconv.FormatInt(es.PID, 10))
		content.ResetRows("Descriptor ")
		if len(es.Descriptors) == 0 {
			content.SetRow("Descriptor 1", descriptorUnavailable)
		}
		for i, desc := range es.Descriptors {
			content.SetRow("Descriptor "+strconv.Itoa(i+1), desc.Type+" (tag: "+strconv.FormatInt(desc.Tag, 10)+")")
		}
	}

	// The processor list is synthesized: one entry when the program is
	// being processed, none otherwise.
	demuxerID := idIn(resource, demuxerScheme)
	programID := idIn(resource, programScheme)
	var procs []model.Entry
	if h.c.session.HasProgramProcessor(demuxerKeyOf(resource), programID, h.c.prefix) {
		procURL := demuxerScheme + demuxerID + programProcScheme + programID + esProcScheme + strconv.FormatInt(es.PID, 10) + ".json"
		procs = append(procs, model.NewEntry(procURL, nil))
	}
	h.c.reconcileKind(key, KindESProcessor, procs)
	return nil
}
