package model

import (
	"strings"

	"github.com/goccy/go-json"
)

// Text decodes a JSON string or number into its textual form.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*t = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(raw)
	return nil
}

// StreamProcs is the list of demultiplexers.
type StreamProcs struct {
	StreamProcs []Entry `json:"stream_procs"`
}

// LogTrace is one demultiplexer log line.
type LogTrace struct {
	Desc    string `json:"log_trace_desc"`
	Counter int64  `json:"log_trace_counter"`
	Date    string `json:"log_trace_date"`
	Code    Text   `json:"log_trace_code"`
}

// DemuxerSettings are the user settable demultiplexer fields.
type DemuxerSettings struct {
	Tag      string `json:"tag"`
	InputURL string `json:"input_url"`
}

// Demuxer is a demultiplexer ("stream processor") resource.
type Demuxer struct {
	ID                int64           `json:"id"`
	IDStr             string          `json:"id_str"`
	InputBitrate      float64         `json:"input_bitrate"`
	InputBufLevel     float64         `json:"input_buf_level"`
	Settings          DemuxerSettings `json:"settings"`
	LogTraces         []LogTrace      `json:"log_traces"`
	Programs          []Entry         `json:"programs"`
	ProgramProcessors []Entry         `json:"program_processors"`
}

// Program is one program of a demultiplexed transport stream.
type Program struct {
	ProgramNumber     int64   `json:"program_number"`
	ServiceName       string  `json:"service_name"`
	ProgramMapSection int64   `json:"program_map_section_PID"`
	PCRPID            int64   `json:"pcr_pid"`
	ElementaryStreams []Entry `json:"elementary_streams"`
	Disassociated     bool    `json:"hasBeenDisassociated"`
	BeingProcessed    bool    `json:"isBeingProcessed"`
}

// BitrateControl is one option of the bitrate control selector.
type BitrateControl struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// ProgramProcessorSettings are the user settable program processor fields.
type ProgramProcessorSettings struct {
	BitrateControls        []BitrateControl `json:"brctrl_type_selector"`
	SelectedBitrateControl int64            `json:"selected_brctrl_type_value"`
	CBR                    float64          `json:"cbr"`
	OutputURL              string           `json:"output_url"`
	MaxTSPCRGuardMsec      int64            `json:"max_ts_pcr_guard_msec"`
	MinSTCDelayOutputMsec  int64            `json:"min_stc_delay_output_msec"`
}

// SelectedBitrateControlName resolves the selected bitrate control option.
func (s ProgramProcessorSettings) SelectedBitrateControlName() string {
	for _, option := range s.BitrateControls {
		if option.Value == s.SelectedBitrateControl {
			return option.Name
		}
	}
	return ""
}

// ProgramProcessor processes a single program.
type ProgramProcessor struct {
	ID               int64                    `json:"id"`
	InputBitrate     float64                  `json:"input_bitrate"`
	InputBitratePeak float64                  `json:"input_bitrate_peak"`
	OutputBitrate    float64                  `json:"output_bitrate"`
	DelayOffset      float64                  `json:"delay_offset"`
	ExtensionTypes   []string                 `json:"es_processor_extension_types"`
	Settings         ProgramProcessorSettings `json:"settings"`
}

// ESDescriptor is a descriptor attached to an elementary stream.
type ESDescriptor struct {
	Type string `json:"type"`
	Tag  int64  `json:"tag"`
}

// ElementaryStream is one elementary stream of a program.
type ElementaryStream struct {
	PID         int64          `json:"es_PID"`
	StreamType  Text           `json:"stream_type"`
	Descriptors []ESDescriptor `json:"descriptors"`
}

// ServiceSettings are the per DVB subtitling service settings held by the
// elementary stream processor.
type ServiceSettings struct {
	ID                      int64  `json:"id"`
	DisplayWidth            *int64 `json:"display_width,omitempty"`
	DisplayHeight           *int64 `json:"display_height,omitempty"`
	ScalePercentage         *int64 `json:"scale_percentage,omitempty"`
	DurationMaxSeg          *int64 `json:"duration_max_seg,omitempty"`
	DurationMinSeg          *int64 `json:"duration_min_seg,omitempty"`
	DurationOffsetSeg       *int64 `json:"duration_offset_seg,omitempty"`
	VerticalOffTop          *int64 `json:"vertical_off_top,omitempty"`
	VerticalOffBot          *int64 `json:"vertical_off_bot,omitempty"`
	HorizontalOff           *int64 `json:"horizontal_off,omitempty"`
	MostUsedPixelColor      *int64 `json:"most_used_pixel_color_rgb24b,omitempty"`
	SecondaryUsedPixelColor *int64 `json:"secondary_used_pixel_color_rgb24b,omitempty"`
	BackgroundPixelColor    *int64 `json:"background_pixel_color_rgb24b,omitempty"`
}

// ESProcessorSettings are the user settable ES processor fields. Only some of
// them apply to a given processor kind.
type ESProcessorSettings struct {
	ExtensionType        string            `json:"extension_type"`
	EnableInterlOutput   bool              `json:"flag_enable_interl_output"`
	TimeShiftOffsetMsec  int64             `json:"time_shift_offset_msec"`
	TSPCRGuardMsec       int64             `json:"ts_pcr_guard_msec"`
	Restamping           string            `json:"restamping,omitempty"`
	DurationOffsetMsec   int64             `json:"duration_offset_msec,omitempty"`
	VPosOffsetPels       int64             `json:"vpos_offset_pels,omitempty"`
	SubtitlingDescriptor json.RawMessage   `json:"subtitling_descriptor,omitempty"`
	Services             []ServiceSettings `json:"services,omitempty"`
}

// ESProcessor processes one elementary stream of a processed program.
type ESProcessor struct {
	ID             int64               `json:"id"`
	InputBitrate   float64             `json:"input_bitrate"`
	OutputBitrate  float64             `json:"output_bitrate"`
	OutputBufLevel float64             `json:"output_buf_level"`
	TimeStampStats json.RawMessage     `json:"time_stamp_stats,omitempty"`
	Settings       ESProcessorSettings `json:"settings"`
	Services       []DVBSubtService    `json:"services,omitempty"`
}

// DisplaySet is the last decoded DVB subtitling display set of a service.
type DisplaySet struct {
	DDS                json.RawMessage   `json:"dds,omitempty"`
	PCS                json.RawMessage   `json:"pcs,omitempty"`
	RCSS               []json.RawMessage `json:"rcss,omitempty"`
	MostUsedPixelColor *int64            `json:"most_used_pixel_color_rgb24b,omitempty"`
}

// HasPage reports whether a page composition segment was decoded.
func (d *DisplaySet) HasPage() bool {
	return d != nil && len(d.PCS) > 0 && string(d.PCS) != "null"
}

// HasRegions reports whether region composition segments were decoded.
func (d *DisplaySet) HasRegions() bool {
	return d != nil && len(d.RCSS) > 0
}

// DVBSubtService is a DVB subtitling service (page) detected by a dvb_subt
// processor. It is embedded in the processor payload and has no URL of its
// own.
type DVBSubtService struct {
	PageID       int64            `json:"page_id"`
	DisplaySetIn *DisplaySet      `json:"display_set_in,omitempty"`
	Settings     *ServiceSettings `json:"settings,omitempty"`
}

// Series is one plotted statistics series.
type Series struct {
	Label string       `json:"label"`
	Data  [][2]float64 `json:"data"`
}

// Last returns the most recent sample of the series.
func (s Series) Last() (float64, bool) {
	if len(s.Data) == 0 {
		return 0, false
	}
	return s.Data[len(s.Data)-1][1], true
}

// CPUStats is the payload of /stats/cpu_stats.json.
type CPUStats struct {
	TimeWindow int      `json:"time_window"`
	CPUStats   []Series `json:"cpu_stats"`
}

// NetStats is the payload of /stats/net_stats.json.
type NetStats struct {
	TimeWindow int      `json:"time_window"`
	NetStats   []Series `json:"net_stats"`
}

// RSSStats is the payload of /stats/rss_stats.json, in kilobytes.
type RSSStats struct {
	MaxRSS float64 `json:"maxrss"`
	CurRSS float64 `json:"currss"`
}
