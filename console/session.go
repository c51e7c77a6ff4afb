package console

import (
	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
	"github.com/timzifer/tsconsole/remote"
)

// Session holds state shared between handlers of one demultiplexer: the
// program processor entries of its latest representation. Program and
// elementary stream handlers consult it to decide which processors exist.
type Session struct {
	processors map[string][]model.Entry
}

func newSession() *Session {
	return &Session{processors: make(map[string][]model.Entry)}
}

// SetProgramProcessors records the program processor list of demuxerKey.
func (s *Session) SetProgramProcessors(demuxerKey string, entries []model.Entry) {
	s.processors[demuxerKey] = entries
}

// Forget drops everything known about demuxerKey.
func (s *Session) Forget(demuxerKey string) {
	delete(s.processors, demuxerKey)
}

// ProgramProcessors returns the entries of demuxerKey whose processor id
// equals programID.
func (s *Session) ProgramProcessors(demuxerKey, programID, prefix string) []model.Entry {
	var out []model.Entry
	for _, entry := range s.processors[demuxerKey] {
		self, err := entry.SelfURL()
		if err != nil {
			continue
		}
		id, ok := nodes.IDInURL(remote.ResourcePath(self, prefix), programProcScheme)
		if ok && id == programID {
			out = append(out, entry)
		}
	}
	return out
}

// HasProgramProcessor reports whether programID of demuxerKey is processed.
func (s *Session) HasProgramProcessor(demuxerKey, programID, prefix string) bool {
	return len(s.ProgramProcessors(demuxerKey, programID, prefix)) > 0
}
