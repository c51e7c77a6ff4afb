package model

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestLinksSelf(t *testing.T) {
	links := Links{{Rel: "parent", Href: "/demuxers.json"}, {Rel: "self", Href: " /demuxers/0.json "}}
	self, err := links.Self()
	require.NoError(t, err)
	require.Equal(t, "/demuxers/0.json", self)

	_, err = Links{{Rel: "parent", Href: "/x.json"}}.Self()
	require.True(t, errors.Is(err, ErrNoSelfLink))
}

func TestEnvelopeCodes(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"code":201,"status":"Created","message":"","data":null}`), &env))
	require.Equal(t, "201", env.Code)
	require.True(t, env.OK("POST"))
	require.False(t, env.OK("PUT"))

	require.NoError(t, json.Unmarshal([]byte(`{"code":"404","status":"Not Found","message":""}`), &env))
	require.False(t, env.OK("GET"))
	require.Equal(t, "Error: Not Found.", env.Describe())

	env.Message = "bad tag"
	require.Equal(t, "Error: bad tag", env.Describe())
}

func TestEntryDecodesLinksAndFields(t *testing.T) {
	payload := `{"program_number":3,"service_name":"News","hasBeenDisassociated":true,
		"links":[{"rel":"self","href":"/demuxers/0/programs/3.json"}]}`
	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(payload), &entry))

	self, err := entry.SelfURL()
	require.NoError(t, err)
	require.Equal(t, "/demuxers/0/programs/3.json", self)
	require.True(t, entry.Disassociated())
	require.False(t, entry.Processing())
	require.Equal(t, "News", entry.String("service_name"))
	require.Equal(t, "3", entry.String("program_number"))
	n, ok := entry.Int("program_number")
	require.True(t, ok)
	require.EqualValues(t, 3, n)
	_, hasLinks := entry.Fields()["links"]
	require.False(t, hasLinks)

	encoded, err := json.Marshal(entry)
	require.NoError(t, err)
	var again Entry
	require.NoError(t, json.Unmarshal(encoded, &again))
	require.Equal(t, entry.Links, again.Links)
}

func TestDemuxerPayload(t *testing.T) {
	payload := `{"id":0,"id_str":"host-0","input_bitrate":1234.5,"input_buf_level":2,
		"settings":{"tag":"feed","input_url":"udp://239.0.0.1:2000"},
		"log_traces":[{"log_trace_desc":"sync lost","log_trace_counter":2,"log_trace_date":"today","log_trace_code":"E1"}],
		"programs":[{"links":[{"rel":"self","href":"/demuxers/0/programs/1.json"}]}],
		"program_processors":[{"links":[{"rel":"self","href":"/demuxers/0/program_processors/1.json"}]}]}`
	var demuxer Demuxer
	require.NoError(t, json.Unmarshal([]byte(payload), &demuxer))
	require.Equal(t, "feed", demuxer.Settings.Tag)
	require.Len(t, demuxer.LogTraces, 1)
	require.Len(t, demuxer.Programs, 1)
	require.Len(t, demuxer.ProgramProcessors, 1)
}

func TestSelectedBitrateControlName(t *testing.T) {
	settings := ProgramProcessorSettings{
		BitrateControls:        []BitrateControl{{Name: "VBR", Value: 0}, {Name: "CBR", Value: 1}},
		SelectedBitrateControl: 1,
	}
	require.Equal(t, "CBR", settings.SelectedBitrateControlName())
	settings.SelectedBitrateControl = 5
	require.Empty(t, settings.SelectedBitrateControlName())
}

func TestDisplaySetState(t *testing.T) {
	var service DVBSubtService
	require.NoError(t, json.Unmarshal([]byte(`{"page_id":1,"display_set_in":{"pcs":{"page_state":0},"rcss":[]}}`), &service))
	require.True(t, service.DisplaySetIn.HasPage())
	require.False(t, service.DisplaySetIn.HasRegions())

	var none *DisplaySet
	require.False(t, none.HasPage())
}

func TestParseProcessorKind(t *testing.T) {
	kind, err := ParseProcessorKind(" dvb_subt ")
	require.NoError(t, err)
	require.Equal(t, KindDVBSubt, kind)

	_, err = ParseProcessorKind("teletext")
	require.Error(t, err)
}

func TestSeriesLast(t *testing.T) {
	value, ok := Series{Data: [][2]float64{{0, 10}, {1, 12.5}}}.Last()
	require.True(t, ok)
	require.Equal(t, 12.5, value)
	_, ok = Series{}.Last()
	require.False(t, ok)
}

func TestTextAcceptsNumbers(t *testing.T) {
	var es ElementaryStream
	require.NoError(t, json.Unmarshal([]byte(`{"es_PID":256,"stream_type":27,"descriptors":[]}`), &es))
	require.Equal(t, Text("27"), es.StreamType)
	require.NoError(t, json.Unmarshal([]byte(`{"es_PID":256,"stream_type":"H.264","descriptors":[]}`), &es))
	require.Equal(t, Text("H.264"), es.StreamType)
}
