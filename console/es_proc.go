package console

import (
	"context"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
)

// esProcVariant holds everything that differs between processor kinds.
type esProcVariant interface {
	Kind() model.ProcessorKind
	// Rows adds the kind specific rows.
	Rows(content *nodes.Content, proc *model.ESProcessor)
	// Children draws kind specific child nodes below key.
	Children(c *Console, key, resource string, proc *model.ESProcessor)
	// SupportsRestamping reports whether the general settings carry the PES
	// restamping mode.
	SupportsRestamping() bool
}

func esProcVariants() map[model.ProcessorKind]esProcVariant {
	variants := make(map[model.ProcessorKind]esProcVariant)
	for _, v := range []esProcVariant{dvbSubtVariant{}, scteVariant{}, bypassVariant{}} {
		variants[v.Kind()] = v
	}
	return variants
}

// esProcHandler renders an elementary stream processor. The processor kind
// decides which rows and children it has; a node whose kind changed is
// rebuilt from scratch.
type esProcHandler struct {
	c        *Console
	variants map[model.ProcessorKind]esProcVariant
}

func (h *esProcHandler) Kind() ResourceKind { return KindESProcessor }
func (h *esProcHandler) Class() nodes.Class { return esProcClass }
func (h *esProcHandler) SchemeTag() string  { return esProcScheme }

func (h *esProcHandler) UpdateLink(*nodes.Link, model.Entry) {}

func (h *esProcHandler) Fetch(ctx context.Context, resource string) (Resource, error) {
	return fetchInto[model.ESProcessor](ctx, h.c.api, resource)
}

func (h *esProcHandler) variant(kind model.ProcessorKind) esProcVariant {
	if v, ok := h.variants[kind]; ok {
		return v
	}
	return bypassVariant{}
}

func (h *esProcHandler) Draw(parentKey, resource string, res Resource) error {
	proc, err := payload[model.ESProcessor](res)
	if err != nil {
		return err
	}
	key, err := nodes.KeyFromURL(resource)
	if err != nil {
		return err
	}
	kind, err := model.ParseProcessorKind(proc.Settings.ExtensionType)
	if err != nil {
		h.c.logger.Debug().Err(err).Str("key", key).Msg("unknown processor kind, rendering common rows only")
		kind = model.ProcessorKind(proc.Settings.ExtensionType)
	}
	if previous, ok := h.c.esKinds[key]; ok && previous != kind && h.c.registry.Exists(key) {
		h.c.logger.Info().Str("key", key).Str("from", previous.String()).Str("to", kind.String()).Msg("processor kind changed, rebuilding node")
		h.c.erase(key)
	}

	label := h.c.labels.Label(KindESProcessor, res.Fields, "Elementary stream processor")
	content, created, err := h.c.ensureNode(key, parentKey, esProcClass, esProcScheme, label, true)
	if err != nil {
		return err
	}
	h.c.esKinds[key] = kind
	if !created && content.Hidden {
		return nil
	}

	v := h.variant(kind)
	s := proc.Settings
	content.SetRow("Processor type", s.ExtensionType)
	content.SetRow("Input bitrate [bps]", formatValue(proc.InputBitrate))
	content.SetRow("Output bitrate [bps]", formatValue(proc.OutputBitrate))
	content.SetRow("Output buffer level [%]", formatValue(proc.OutputBufLevel))
	content.SetRow("Enable elementary stream output", strconv.FormatBool(s.EnableInterlOutput))
	content.SetRow("Time shift offset [msec]", strconv.FormatInt(s.TimeShiftOffsetMsec, 10))
	content.SetRow("Time-stamps over PCR guard [msec]", strconv.FormatInt(s.TSPCRGuardMsec, 10))
	v.Rows(content, proc)
	v.Children(h.c, key, resource, proc)
	return nil
}

type bypassVariant struct{}

func (bypassVariant) Kind() model.ProcessorKind                             { return model.KindESBypass }
func (bypassVariant) Rows(*nodes.Content, *model.ESProcessor)               {}
func (bypassVariant) Children(*Console, string, string, *model.ESProcessor) {}
func (bypassVariant) SupportsRestamping() bool                              { return false }

type scteVariant struct{}

func (scteVariant) Kind() model.ProcessorKind { return model.KindSCTESubt2DVB }

func (scteVariant) Rows(content *nodes.Content, proc *model.ESProcessor) {
	content.SetRow("Duration offset [msec]", strconv.FormatInt(proc.Settings.DurationOffsetMsec, 10))
	content.SetRow("Vertical position offset [pels]", strconv.FormatInt(proc.Settings.VPosOffsetPels, 10))
	drawSubtitlingDescriptor(content, proc.Settings.SubtitlingDescriptor)
}

func (scteVariant) Children(*Console, string, string, *model.ESProcessor) {}
func (scteVariant) SupportsRestamping() bool                              { return false }

type dvbSubtVariant struct{}

func (dvbSubtVariant) Kind() model.ProcessorKind { return model.KindDVBSubt }

func (dvbSubtVariant) Rows(content *nodes.Content, proc *model.ESProcessor) {
	content.SetRow("PES restamping", proc.Settings.Restamping)
	drawSubtitlingDescriptor(content, proc.Settings.SubtitlingDescriptor)
}

func (dvbSubtVariant) SupportsRestamping() bool { return true }

// Children reconciles the subtitling services. Services have no resource of
// their own; their data travels in the processor payload and is merged with
// the per service settings.
func (dvbSubtVariant) Children(c *Console, key, resource string, proc *model.ESProcessor) {
	services := make(map[string]model.DVBSubtService, len(proc.Services))
	snapshot := make([]nodes.Descriptor, 0, len(proc.Services))
	base := strings.TrimSuffix(resource, ".json")
	for _, service := range proc.Services {
		for i := range proc.Settings.Services {
			if proc.Settings.Services[i].ID == service.PageID {
				settings := proc.Settings.Services[i]
				service.Settings = &settings
				break
			}
		}
		serviceURL := base + serviceScheme + strconv.FormatInt(service.PageID, 10) + ".json"
		services[serviceURL] = service
		snapshot = append(snapshot, entryRef{Entry: model.NewEntry(serviceURL, nil), url: serviceURL})
	}
	h := c.handlers[KindDVBService].(*serviceHandler)
	c.reconcile(key, esProcDetailClass, snapshot, func(serviceURL string, _ nodes.Descriptor) {
		if err := h.draw(key, serviceURL, services[serviceURL]); err != nil {
			c.logger.Warn().Err(err).Str("url", serviceURL).Msg("draw service failed")
		}
	}, nil)
}

const subtitlingDescriptorRows = "Subtitling descriptor "

func drawSubtitlingDescriptor(content *nodes.Content, raw json.RawMessage) {
	content.ResetRows(subtitlingDescriptorRows)
	var sets [][]any
	if len(raw) == 0 || json.Unmarshal(raw, &sets) != nil || len(sets) == 0 {
		content.SetRow(subtitlingDescriptorRows+"1", descriptorUnavailable)
		return
	}
	for i, set := range sets {
		fields := make([]string, 0, len(set))
		for _, v := range set {
			fields = append(fields, formatValue(v))
		}
		content.SetRow(subtitlingDescriptorRows+strconv.Itoa(i+1), "language "+field(fields, 0)+
			" | type "+field(fields, 1)+" | composition page "+field(fields, 2)+" | ancillary page "+field(fields, 3))
	}
}

func field(values []string, idx int) string {
	if idx < len(values) {
		return values[idx]
	}
	return "-"
}
