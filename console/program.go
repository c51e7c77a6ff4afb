package console

import (
	"context"
	"strconv"
	"strings"

	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
)

// programHandler renders a program with its processor and elementary
// stream lists.
type programHandler struct {
	c *Console
}

func (h *programHandler) Kind() ResourceKind { return KindProgram }
func (h *programHandler) Class() nodes.Class { return programClass }
func (h *programHandler) SchemeTag() string  { return programScheme }

func programLabel(number int64, serviceName string) string {
	label := "program " + strconv.FormatInt(number, 10)
	if strings.TrimSpace(serviceName) != "" {
		return label + ": " + serviceName
	}
	return label + " (No service name available)"
}

// UpdateLink sets the label and the processing marker. A disassociated
// program is never shown as processing.
func (h *programHandler) UpdateLink(link *nodes.Link, entry model.Entry) {
	number, _ := entry.Int("program_number")
	link.Label = h.c.labels.Label(KindProgram, entry.Fields(), programLabel(number, entry.String("service_name")))
	link.Processing = !entry.Disassociated() && entry.Processing()
}

func (h *programHandler) Fetch(ctx context.Context, resource string) (Resource, error) {
	return fetchInto[model.Program](ctx, h.c.api, resource)
}

func (h *programHandler) Draw(parentKey, resource string, res Resource) error {
	program, err := payload[model.Program](res)
	if err != nil {
		return err
	}
	key, err := nodes.KeyFromURL(resource)
	if err != nil {
		return err
	}
	label := h.c.labels.Label(KindProgram, res.Fields, programLabel(program.ProgramNumber, program.ServiceName))
	content, created, err := h.c.ensureNode(key, parentKey, programClass, programScheme, label, false)
	if err != nil {
		return err
	}
	node, _ := h.c.registry.Get(key)
	if created {
		node.Link.Disassociated = program.Disassociated
		node.Link.Processing = !program.Disassociated && program.BeingProcessed
	}
	if created || !content.Hidden {
		processing := "disabled"
		if node.Link.Processing || node.Link.Disassociated {
			processing = "enabled"
		}
		content.SetRow("Program processing", processing)
		content.SetRow("Program number", strconv.FormatInt(program.ProgramNumber, 10))
		content.SetRow("Service name", program.ServiceName)
		content.SetRow("Program map section PID", strconv.FormatInt(program.ProgramMapSection, 10))
		content.SetRow("Program PCR PID", strconv.FormatInt(program.PCRPID, 10))
	}

	demuxerKey := demuxerKeyOf(resource)
	programID := idIn(resource, programScheme)
	h.c.reconcileKind(key, KindProgramProcessor, h.c.session.ProgramProcessors(demuxerKey, programID, h.c.prefix))
	h.c.reconcileKind(key, KindElementaryStream, program.ElementaryStreams)
	return nil
}

// demuxerKeyOf returns the key of the demultiplexer owning resource.
func demuxerKeyOf(resource string) string {
	id := idIn(resource, demuxerScheme)
	if id == "" {
		return ""
	}
	key, err := nodes.KeyFromURL(demuxerScheme + id + ".json")
	if err != nil {
		return ""
	}
	return key
}
