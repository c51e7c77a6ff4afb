package console

import (
	"context"
	"strconv"

	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
)

const traceUnavailable = "Description not available (please report code)"

// demuxerHandler renders one demultiplexer tab with its settings, log traces
// and program list.
type demuxerHandler struct {
	c *Console
}

func (h *demuxerHandler) Kind() ResourceKind { return KindDemuxer }
func (h *demuxerHandler) Class() nodes.Class { return streamProcClass }
func (h *demuxerHandler) SchemeTag() string  { return demuxerScheme }

// UpdateLink labels the tab from its stream_procs entry.
func (h *demuxerHandler) UpdateLink(link *nodes.Link, entry model.Entry) {
	link.Label = h.label(entry.String("proc_id"), entry.String("tag"), entry.Fields())
}

// label names a tab "#host-id tag" unless a label expression is
// configured. fields carry proc_id and tag the way the stream_procs list
// reports them.
func (h *demuxerHandler) label(id, tag string, fields map[string]any) string {
	return h.c.labels.Label(KindDemuxer, fields, "#"+h.c.host+"-"+id+" "+tag)
}

func (h *demuxerHandler) Fetch(ctx context.Context, resource string) (Resource, error) {
	return fetchInto[model.Demuxer](ctx, h.c.api, resource)
}

func (h *demuxerHandler) Draw(parentKey, resource string, res Resource) error {
	demuxer, err := payload[model.Demuxer](res)
	if err != nil {
		return err
	}
	key, err := nodes.KeyFromURL(resource)
	if err != nil {
		return err
	}
	h.c.session.SetProgramProcessors(key, demuxer.ProgramProcessors)

	fields := make(map[string]any, len(res.Fields)+2)
	for k, v := range res.Fields {
		fields[k] = v
	}
	fields["proc_id"] = float64(demuxer.ID)
	fields["tag"] = demuxer.Settings.Tag
	label := h.label(strconv.FormatInt(demuxer.ID, 10), demuxer.Settings.Tag, fields)
	content, created, err := h.c.ensureNode(key, parentKey, streamProcClass, demuxerScheme, label, false)
	if err != nil {
		return err
	}
	if created || !content.Hidden {
		content.SetRow("Unambiguous id.", "Demultiplexer #"+strconv.FormatInt(demuxer.ID, 10))
		content.SetRow("Input bitrate [kbps]", formatValue(demuxer.InputBitrate))
		content.SetRow("Input buffer level [%]", formatValue(demuxer.InputBufLevel))
		content.SetRow("Tag", demuxer.Settings.Tag)
		content.SetRow("Input URL", demuxer.Settings.InputURL)
		drawTraces(content, demuxer.LogTraces)
	}

	h.c.reconcileKind(key, KindProgram, demuxer.Programs)
	return nil
}

func drawTraces(content *nodes.Content, traces []model.LogTrace) {
	content.ResetRows("Trace ")
	for i, trace := range traces {
		desc := trace.Desc
		if desc == "Assertion failed.\n" || desc == "Check point failed.\n" {
			desc = traceUnavailable
		}
		content.SetRow("Trace "+strconv.Itoa(i+1), desc+" | counter: "+strconv.FormatInt(trace.Counter, 10)+
			" | "+trace.Date+" | code: "+string(trace.Code))
	}
}
