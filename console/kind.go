package console

import (
	"fmt"

	"github.com/timzifer/tsconsole/nodes"
)

// ResourceKind enumerates the server resources the console renders.
type ResourceKind int

const (
	KindSystem ResourceKind = iota
	KindStreamProcs
	KindDemuxer
	KindProgram
	KindProgramProcessor
	KindElementaryStream
	KindESProcessor
	KindDVBService
)

var kindNames = map[ResourceKind]string{
	KindSystem:           "system",
	KindStreamProcs:      "stream_procs",
	KindDemuxer:          "demuxer",
	KindProgram:          "program",
	KindProgramProcessor: "program_processor",
	KindElementaryStream: "elementary_stream",
	KindESProcessor:      "es_processor",
	KindDVBService:       "dvb_service",
}

// String returns the configuration name of the kind.
func (k ResourceKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseResourceKind resolves a configuration name.
func ParseResourceKind(name string) (ResourceKind, error) {
	for kind, candidate := range kindNames {
		if candidate == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown resource kind %q", name)
}

// Child list classes and URL scheme tags.
var (
	mainTabsClass     = nodes.TabClass("main-tabs")
	streamProcClass   = nodes.TabClass("streamProc")
	programClass      = nodes.DropdownClass("program-dropdown")
	programProcClass  = nodes.DropdownClass("program-proc-dropdown")
	esClass           = nodes.DropdownClass("es-dropdown")
	esProcClass       = nodes.DropdownClass("es-proc-dropdown")
	esProcDetailClass = nodes.DropdownClass("es-proc-details-dropdown")
)

const (
	systemURL      = "/system.json"
	streamProcsURL = "/stream_procs.json"

	demuxerScheme     = "/demuxers/"
	programScheme     = "/programs/"
	programProcScheme = "/program_processors/"
	esScheme          = "/elementary_streams/"
	esProcScheme      = "/es_processors/"
	serviceScheme     = "/services/"
)
