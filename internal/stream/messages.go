package stream

import (
	"time"

	"github.com/ChenXin-2009/solmap-sub004/internal/catalog"
	"github.com/ChenXin-2009/solmap-sub004/internal/sim"
	"github.com/ChenXin-2009/solmap-sub004/internal/trail"
)

// Message payload types.

type metadataMessage struct {
	Type            string `json:"type"`
	CatalogSource   string `json:"catalog_source"`
	CatalogLoadedAt string `json:"catalog_loaded_at"`
	CatalogAge      int    `json:"catalog_age_seconds"`
	Bodies          int    `json:"bodies"`
}

type frameMessage struct {
	Type   string        `json:"type"`
	JD     float64       `json:"jd"`
	T      string        `json:"t"`
	Frame  string        `json:"frame"`
	Bodies []bodyPayload `json:"bodies"`
}

type bodyPayload struct {
	Name string       `json:"name"`
	P    [3]float64   `json:"p"`
	Tr   [][3]float64 `json:"tr,omitempty"`
}

func buildMetadataMessage(ds *catalog.Dataset) metadataMessage {
	return metadataMessage{
		Type:            "metadata",
		CatalogSource:   ds.Source,
		CatalogLoadedAt: ds.LoadedAt.UTC().Format(time.RFC3339),
		CatalogAge:      int(time.Since(ds.LoadedAt).Seconds()),
		Bodies:          len(ds.Bodies),
	}
}

// buildFrameMessage formats a frame into the stream payload. Bodies with a
// matching trail carry its points, oldest first.
func buildFrameMessage(f *sim.Frame, trails []trail.PlanetTrail) frameMessage {
	var trailIndex map[string][][3]float64
	if len(trails) > 0 {
		trailIndex = make(map[string][][3]float64, len(trails))
		for _, tr := range trails {
			pts := make([][3]float64, len(tr.Points))
			for i, p := range tr.Points {
				pts[i] = [3]float64{p.X, p.Y, p.Z}
			}
			trailIndex[tr.Name] = pts
		}
	}

	bodies := make([]bodyPayload, len(f.Bodies))
	for i, b := range f.Bodies {
		bodies[i] = bodyPayload{
			Name: b.Name,
			P:    [3]float64{b.X, b.Y, b.Z},
		}
		if tr, ok := trailIndex[b.Name]; ok && len(tr) > 0 {
			bodies[i].Tr = tr
		}
	}
	return frameMessage{
		Type:   "frame",
		JD:     f.JulianDay,
		T:      f.Time.UTC().Format(time.RFC3339),
		Frame:  "ecliptic_j2000",
		Bodies: bodies,
	}
}
