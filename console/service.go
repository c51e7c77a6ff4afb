package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/timzifer/tsconsole/model"
	"github.com/timzifer/tsconsole/nodes"
)

var errEmbeddedResource = errors.New("resource is embedded in its parent and cannot be fetched")

// serviceHandler renders a DVB subtitling service. Services are drawn from
// the payload of their processor, so Fetch is never used.
type serviceHandler struct {
	c *Console
}

func (h *serviceHandler) Kind() ResourceKind { return KindDVBService }
func (h *serviceHandler) Class() nodes.Class { return esProcDetailClass }
func (h *serviceHandler) SchemeTag() string  { return serviceScheme }

func (h *serviceHandler) UpdateLink(*nodes.Link, model.Entry) {}

func (h *serviceHandler) Fetch(context.Context, string) (Resource, error) {
	return Resource{}, errEmbeddedResource
}

func (h *serviceHandler) Draw(parentKey, resource string, res Resource) error {
	service, err := payload[model.DVBSubtService](res)
	if err != nil {
		return err
	}
	return h.draw(parentKey, resource, *service)
}

func serviceLabel(pageID int64) string {
	return "Service/page Id.: " + hexLabel(pageID) + " "
}

// draw creates a service node once a display set has been decoded for it. A
// service showing a complete page starts expanded.
func (h *serviceHandler) draw(parentKey, resource string, service model.DVBSubtService) error {
	key, err := nodes.KeyFromURL(resource)
	if err != nil {
		return err
	}
	if !h.c.registry.Exists(key) && service.DisplaySetIn == nil {
		return nil
	}
	selected := service.DisplaySetIn.HasPage() && service.DisplaySetIn.HasRegions()
	content, created, err := h.c.ensureNode(key, parentKey, esProcDetailClass, serviceScheme, serviceLabel(service.PageID), selected)
	if err != nil {
		return err
	}
	if !created && content.Hidden {
		return nil
	}

	content.SetRow("Service/page Id.", hexLabel(service.PageID))
	ds := service.DisplaySetIn
	content.SetRow("Display definition segment", presence(ds != nil && len(ds.DDS) > 0 && string(ds.DDS) != "null"))
	content.SetRow("Page composition segment", presence(ds.HasPage()))
	regions := 0
	if ds != nil {
		regions = len(ds.RCSS)
	}
	content.SetRow("Region composition segments", strconv.Itoa(regions))
	if ds != nil && ds.MostUsedPixelColor != nil {
		content.SetRow("Detected most used pixel color", colorHex(*ds.MostUsedPixelColor))
	}

	s := service.Settings
	if s == nil {
		s = &model.ServiceSettings{ID: service.PageID}
	}
	content.SetRow("Display width [pels]", optionalInt(s.DisplayWidth))
	content.SetRow("Display height [pels]", optionalInt(s.DisplayHeight))
	content.SetRow("Scale [%]", optionalInt(s.ScalePercentage))
	content.SetRow("Maximum duration per segment [msec]", optionalInt(s.DurationMaxSeg))
	content.SetRow("Minimum duration per segment [msec]", optionalInt(s.DurationMinSeg))
	content.SetRow("Duration offset per segment [msec]", optionalInt(s.DurationOffsetSeg))
	content.SetRow("Vertical offset top [pels]", optionalInt(s.VerticalOffTop))
	content.SetRow("Vertical offset bottom [pels]", optionalInt(s.VerticalOffBot))
	content.SetRow("Horizontal offset [pels]", optionalInt(s.HorizontalOff))
	content.SetRow("Most used pixel color", optionalColor(s.MostUsedPixelColor))
	content.SetRow("Secondary used pixel color", optionalColor(s.SecondaryUsedPixelColor))
	content.SetRow("Background pixel color", optionalColor(s.BackgroundPixelColor))
	return nil
}

func presence(ok bool) string {
	if ok {
		return "received"
	}
	return "not received"
}

func optionalInt(v *int64) string {
	if v == nil {
		return "auto"
	}
	return strconv.FormatInt(*v, 10)
}

func optionalColor(v *int64) string {
	if v == nil {
		return "auto"
	}
	return colorHex(*v)
}

func colorHex(rgb int64) string {
	return fmt.Sprintf("#%06x", rgb&0xffffff)
}
