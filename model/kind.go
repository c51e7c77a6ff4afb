package model

import (
	"fmt"
	"strings"
)

// ProcessorKind is the extension type of an elementary stream processor.
type ProcessorKind string

const (
	KindDVBSubt      ProcessorKind = "dvb_subt"
	KindSCTESubt2DVB ProcessorKind = "scte_subt2dvb"
	KindESBypass     ProcessorKind = "es_bypass"
)

// ProcessorKinds lists all known processor kinds.
var ProcessorKinds = []ProcessorKind{KindDVBSubt, KindSCTESubt2DVB, KindESBypass}

// ParseProcessorKind validates an extension type string.
func ParseProcessorKind(value string) (ProcessorKind, error) {
	kind := ProcessorKind(strings.TrimSpace(value))
	for _, known := range ProcessorKinds {
		if kind == known {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown processor kind %q", value)
}

func (k ProcessorKind) String() string { return string(k) }
