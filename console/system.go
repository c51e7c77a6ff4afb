package console

import (
	"context"
	"fmt"

	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
)

const (
	cpuStatsURL = "/stats/cpu_stats.json"
	netStatsURL = "/stats/net_stats.json"
	rssStatsURL = "/stats/rss_stats.json"
)

type systemStats struct {
	CPU model.CPUStats
	Net model.NetStats
	RSS model.RSSStats
}

// systemHandler shows the host statistics of the server.
type systemHandler struct {
	c *Console
}

func (h *systemHandler) Kind() ResourceKind { return KindSystem }
func (h *systemHandler) Class() nodes.Class { return mainTabsClass }
func (h *systemHandler) SchemeTag() string  { return "" }

func (h *systemHandler) UpdateLink(*nodes.Link, model.Entry) {}

func (h *systemHandler) Fetch(ctx context.Context, _ string) (Resource, error) {
	var stats systemStats
	if err := h.c.api.Get(ctx, cpuStatsURL, &stats.CPU); err != nil {
		return Resource{}, err
	}
	if err := h.c.api.Get(ctx, netStatsURL, &stats.Net); err != nil {
		return Resource{}, err
	}
	if err := h.c.api.Get(ctx, rssStatsURL, &stats.RSS); err != nil {
		return Resource{}, err
	}
	return Resource{Value: &stats}, nil
}

func (h *systemHandler) Draw(_, resource string, res Resource) error {
	stats, err := payload[systemStats](res)
	if err != nil {
		return err
	}
	key, err := nodes.KeyFromURL(resource)
	if err != nil {
		return err
	}
	node, ok := h.c.registry.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", nodes.ErrUnknownNode, key)
	}
	content := node.Content

	if avg, ok := cpuAverage(stats.CPU); ok {
		content.SetRow("CPU average", formatValue(avg))
	}
	content.ResetRows("CPU [")
	for _, series := range stats.CPU.CPUStats {
		if last, ok := series.Last(); ok {
			content.SetRow("CPU ["+series.Label+"] [%]", formatValue(last))
		}
	}
	content.ResetRows("Network [")
	for _, series := range stats.Net.NetStats {
		if last, ok := series.Last(); ok {
			content.SetRow("Network ["+series.Label+"] [Kbps]", formatValue(last))
		}
	}
	content.SetRow("Peak Rss", formatScaled(stats.RSS.MaxRSS, 1000))
	content.SetRow("Current Rss", formatScaled(stats.RSS.CurRSS, 1000))
	return nil
}

// cpuAverage is the sample at the end of the time window of the first
// series, which carries the average over all cores.
func cpuAverage(stats model.CPUStats) (float64, bool) {
	if len(stats.CPUStats) == 0 {
		return 0, false
	}
	first := stats.CPUStats[0]
	idx := stats.TimeWindow - 1
	if idx >= 0 && idx < len(first.Data) {
		return first.Data[idx][1], true
	}
	return first.Last()
}
