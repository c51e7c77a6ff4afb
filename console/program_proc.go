package console

import (
	"context"
	"strconv"
	"strings"

	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
)

// programProcHandler renders the processor of a processed program.
type programProcHandler struct {
	c *Console
}

func (h *programProcHandler) Kind() ResourceKind { return KindProgramProcessor }
func (h *programProcHandler) Class() nodes.Class { return programProcClass }
func (h *programProcHandler) SchemeTag() string  { return programProcScheme }

func (h *programProcHandler) UpdateLink(link *nodes.Link, entry model.Entry) {
	link.Label = h.c.labels.Label(KindProgramProcessor, entry.Fields(), link.Label)
}

func (h *programProcHandler) Fetch(ctx context.Context, resource string) (Resource, error) {
	return fetchInto[model.ProgramProcessor](ctx, h.c.api, resource)
}

func (h *programProcHandler) Draw(parentKey, resource string, res Resource) error {
	proc, err := payload[model.ProgramProcessor](res)
	if err != nil {
		return err
	}
	key, err := nodes.KeyFromURL(resource)
	if err != nil {
		return err
	}
	label := h.c.labels.Label(KindProgramProcessor, res.Fields, "Program processor")
	content, created, err := h.c.ensureNode(key, parentKey, programProcClass, programProcScheme, label, true)
	if err != nil {
		return err
	}
	if !created && content.Hidden {
		return nil
	}
	settings := proc.Settings
	content.SetRow("Input bitrate [Kbps]", formatValue(proc.InputBitrate))
	content.SetRow("Input bitrate peak [Kbps]", formatValue(proc.InputBitratePeak))
	content.SetRow("Output bitrate [Kbps]", formatValue(proc.OutputBitrate))
	content.SetRow("Total delay introduced [msec]", formatValue(proc.DelayOffset))
	content.SetRow("ES processor types", strings.Join(proc.ExtensionTypes, ", "))
	content.SetRow("Bitrate control type", settings.SelectedBitrateControlName())
	content.SetRow("Constant bitrate [Kbps]", formatValue(settings.CBR))
	content.SetRow("Output URL", settings.OutputURL)
	content.SetRow("Time-stamps over PCR guard [msec]", strconv.FormatInt(settings.MaxTSPCRGuardMsec, 10))
	content.SetRow("Minimum STC delay output [msec]", strconv.FormatInt(settings.MinSTCDelayOutputMsec, 10))
	return nil
}
