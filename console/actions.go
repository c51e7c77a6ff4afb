package console

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/timzifer/tsconsole/model"
)

// ErrInvalidValue is returned when an action value fails validation.
var ErrInvalidValue = errors.New("invalid action value")

// target is the node an action applies to, captured on the event loop.
type target struct {
	key    string
	parent string
	url    string
	kind   ResourceKind
	esKind model.ProcessorKind
}

type actionFunc func(ctx context.Context, t target, values url.Values) error

// action is an operator command. refresh picks the node reloaded after
// success; nil reloads the target.
type action struct {
	run     actionFunc
	refresh func(t target) string
}

const (
	defaultDemuxerProc         = "mpeg2_sp"
	defaultMaxTSPCRGuardMsec   = 300
	defaultMinSTCDelayOutMsec  = 600
	maxTSPCRGuardMsec          = 32767
	subtitlingDescriptorFields = 4
)

func parentOf(t target) string { return t.parent }

func (c *Console) buildActions() map[ResourceKind]map[string]action {
	put := func(query func(t target, values url.Values) (url.Values, error)) actionFunc {
		return func(ctx context.Context, t target, values url.Values) error {
			q, err := query(t, values)
			if err != nil {
				return err
			}
			return c.api.Put(ctx, t.url, q, nil)
		}
	}
	flag := func(name string) actionFunc {
		return put(func(target, url.Values) (url.Values, error) {
			return url.Values{name: {"true"}}, nil
		})
	}

	return map[ResourceKind]map[string]action{
		KindStreamProcs: {
			"add_demuxer": {run: func(ctx context.Context, t target, _ url.Values) error {
				return c.api.Post(ctx, t.url, url.Values{"proc_name": {defaultDemuxerProc}})
			}},
		},
		KindDemuxer: {
			"delete": {run: func(ctx context.Context, t target, _ url.Values) error {
				return c.api.Delete(ctx, t.url)
			}, refresh: parentOf},
			"settings": {run: put(func(_ target, values url.Values) (url.Values, error) {
				return copyValues(values, "tag", "input_url")
			})},
			"clear_logs":          {run: flag("flag_clear_logs")},
			"purge_disassociated": {run: flag("flag_purge_disassociated_processors")},
		},
		KindProgram: {
			"enable_processing": {run: func(ctx context.Context, t target, _ url.Values) error {
				return c.api.Post(ctx, programProcURL(t.url), nil)
			}, refresh: parentOf},
			"disable_processing": {run: func(ctx context.Context, t target, _ url.Values) error {
				return c.api.Delete(ctx, programProcURL(t.url))
			}, refresh: parentOf},
			"purge_disassociated_es": {run: func(ctx context.Context, t target, _ url.Values) error {
				return c.api.Put(ctx, programProcURL(t.url), url.Values{"flag_purge_disassociated_processors": {"true"}}, nil)
			}},
		},
		KindProgramProcessor: {
			"clear_input_bitrate_peak": {run: flag("flag_clear_input_bitrate_peak")},
			"settings": {run: put(func(_ target, values url.Values) (url.Values, error) {
				q, err := copyValues(values, "output_url")
				if err != nil {
					return nil, err
				}
				if err := setInt(q, values, "selected_brctrl_type_value", math.MinInt32, math.MaxInt32); err != nil {
					return nil, err
				}
				if err := setInt(q, values, "cbr", math.MinInt32, math.MaxInt32); err != nil {
					return nil, err
				}
				return q, nil
			})},
			"advanced_settings": {run: put(func(_ target, values url.Values) (url.Values, error) {
				q := url.Values{}
				if err := setInt(q, values, "max_ts_pcr_guard_msec", math.MinInt32, math.MaxInt32); err != nil {
					return nil, err
				}
				if err := setInt(q, values, "min_stc_delay_output_msec", math.MinInt32, math.MaxInt32); err != nil {
					return nil, err
				}
				return q, nil
			})},
			"reset_defaults": {run: put(func(target, url.Values) (url.Values, error) {
				return url.Values{
					"max_ts_pcr_guard_msec":     {strconv.Itoa(defaultMaxTSPCRGuardMsec)},
					"min_stc_delay_output_msec": {strconv.Itoa(defaultMinSTCDelayOutMsec)},
				}, nil
			})},
		},
		KindESProcessor: {
			"extension_type": {run: put(func(_ target, values url.Values) (url.Values, error) {
				kind, err := model.ParseProcessorKind(values.Get("extension_type"))
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
				}
				return url.Values{"extension_type": {kind.String()}}, nil
			})},
			"clear_ts_registers": {run: flag("flag_clear_ts_registers")},
			"settings": {run: put(func(t target, values url.Values) (url.Values, error) {
				enable, err := strconv.ParseBool(strings.TrimSpace(values.Get("flag_enable_interl_output")))
				if err != nil {
					return nil, fmt.Errorf("%w: flag_enable_interl_output: %q", ErrInvalidValue, values.Get("flag_enable_interl_output"))
				}
				q := url.Values{"flag_enable_interl_output": {strconv.FormatBool(enable)}}
				if err := setInt(q, values, "time_shift_offset_msec", math.MinInt32, math.MaxInt32); err != nil {
					return nil, err
				}
				if err := setInt(q, values, "ts_pcr_guard_msec", -maxTSPCRGuardMsec, maxTSPCRGuardMsec); err != nil {
					return nil, err
				}
				if c.variantSupportsRestamping(t.esKind) {
					if restamping := values.Get("restamping"); restamping != "" {
						q.Set("restamping", restamping)
					}
				}
				return q, nil
			})},
			"scte_settings": {run: put(func(_ target, values url.Values) (url.Values, error) {
				q := url.Values{}
				if err := setInt(q, values, "duration_offset_msec", math.MinInt32, math.MaxInt32); err != nil {
					return nil, err
				}
				if err := setInt(q, values, "vpos_offset_pels", math.MinInt32, math.MaxInt32); err != nil {
					return nil, err
				}
				return q, nil
			})},
			"subtitling_descriptor": {run: func(ctx context.Context, t target, values url.Values) error {
				sets, err := parseDescriptorSets(values["set"])
				if err != nil {
					return err
				}
				body := map[string]any{"subtitling_descriptor": nil}
				if len(sets) > 0 {
					body["subtitling_descriptor"] = sets
				}
				return c.api.Put(ctx, t.url, nil, body)
			}},
		},
		KindDVBService: {
			"settings": {run: func(ctx context.Context, t target, values url.Values) error {
				service, err := serviceSettingsBody(idIn(t.url, serviceScheme), values)
				if err != nil {
					return err
				}
				body := map[string]any{"services": []map[string]any{service}}
				return c.api.Put(ctx, t.parentURL(), nil, body)
			}},
		},
	}
}

func (t target) parentURL() string {
	i := strings.LastIndex(t.url, serviceScheme)
	if i < 0 {
		return t.url
	}
	return t.url[:i] + ".json"
}

func (c *Console) variantSupportsRestamping(kind model.ProcessorKind) bool {
	h, ok := c.handlers[KindESProcessor].(*esProcHandler)
	if !ok {
		return false
	}
	return h.variant(kind).SupportsRestamping()
}

// programProcURL maps a program resource to the processor resource that
// enables processing for it.
func programProcURL(program string) string {
	return demuxerScheme + idIn(program, demuxerScheme) + programProcScheme + idIn(program, programScheme) + ".json"
}

func copyValues(values url.Values, names ...string) (url.Values, error) {
	q := url.Values{}
	for _, name := range names {
		v, ok := values[name]
		if !ok || len(v) == 0 {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidValue, name)
		}
		q.Set(name, strings.TrimSpace(v[0]))
	}
	return q, nil
}

// setInt copies the integer name from values into q, bounded to [lo, hi].
func setInt(q, values url.Values, name string, lo, hi int64) error {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidValue, name)
	}
	n, err := parseInt(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %q", ErrInvalidValue, name, raw)
	}
	q.Set(name, strconv.FormatInt(clamp(n, lo, hi), 10))
	return nil
}

func parseInt(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		return n, nil
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
		if strings.HasPrefix(raw, "-") {
			return math.MinInt64, nil
		}
		return math.MaxInt64, nil
	}
	return 0, err
}

func clamp(n, lo, hi int64) int64 {
	switch {
	case n < lo:
		return lo
	case n > hi:
		return hi
	}
	return n
}

// parseDescriptorSets reads subtitling descriptor rows given as
// "language,type,composition page,ancillary page". Empty fields count as 0.
func parseDescriptorSets(rows []string) ([][]int64, error) {
	sets := make([][]int64, 0, len(rows))
	for i, row := range rows {
		if strings.TrimSpace(row) == "" {
			continue
		}
		fields := strings.Split(row, ",")
		if len(fields) != subtitlingDescriptorFields {
			return nil, fmt.Errorf("%w: descriptor set %d needs %d fields, got %d", ErrInvalidValue, i+1, subtitlingDescriptorFields, len(fields))
		}
		set := make([]int64, subtitlingDescriptorFields)
		for j, field := range fields {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			n, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: descriptor set %d field %d: %q", ErrInvalidValue, i+1, j+1, field)
			}
			set[j] = n
		}
		sets = append(sets, set)
	}
	return sets, nil
}

var serviceIntSettings = []string{
	"display_width",
	"display_height",
	"scale_percentage",
	"duration_max_seg",
	"duration_min_seg",
	"duration_offset_seg",
	"vertical_off_top",
	"vertical_off_bot",
	"horizontal_off",
}

var serviceColorSettings = []string{
	"most_used_pixel_color_rgb24b",
	"secondary_used_pixel_color_rgb24b",
	"background_pixel_color_rgb24b",
}

// serviceSettingsBody builds one entry of the services settings array. Blank
// values are sent as null so the server falls back to its automatic choice.
func serviceSettingsBody(pageID string, values url.Values) (map[string]any, error) {
	id, err := strconv.ParseInt(pageID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: service id %q", ErrInvalidValue, pageID)
	}
	service := map[string]any{"id": id}
	for _, name := range serviceIntSettings {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			service[name] = nil
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q", ErrInvalidValue, name, raw)
		}
		service[name] = n
	}
	for _, name := range serviceColorSettings {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			service[name] = nil
			continue
		}
		rgb, err := parseColor(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q", ErrInvalidValue, name, raw)
		}
		if rgb < 0 {
			service[name] = nil
			continue
		}
		service[name] = rgb
	}
	return service, nil
}

// parseColor accepts "#rrggbb" or a plain decimal rgb24 value.
func parseColor(raw string) (int64, error) {
	if strings.HasPrefix(raw, "#") {
		if len(raw) != 7 {
			return 0, fmt.Errorf("bad color %q", raw)
		}
		return strconv.ParseInt(raw[1:], 16, 64)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if n > 0xffffff {
		return 0, fmt.Errorf("color %d out of range", n)
	}
	return n, nil
}
