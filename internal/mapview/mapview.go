// Package mapview renders a self-contained Leaflet map of an optimized route.
package mapview

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"finitefield.org/route-planner/internal/geo"
)

const (
	defaultTileURL     = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	defaultAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
	defaultZoom        = 10
	defaultHeight      = 480
	leafletCSS         = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"
	leafletJS          = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"

	colorStart = "green"
	colorEnd   = "red"
	colorStop  = "blue"
	lineColor  = "blue"
	lineWeight = 5
)

// ErrNoPoints is returned when there is nothing to draw.
var ErrNoPoints = errors.New("mapview: no points to render")

// Config controls tiles and sizing.
type Config struct {
	TileURL     string
	Attribution string
	Zoom        int
	Height      int
}

// Stop is an input address with its coordinate.
type Stop struct {
	Address    string
	Coordinate geo.Coordinate
}

// Route is what gets drawn: stops in input order and the road geometry.
type Route struct {
	Stops []Stop
	Path  []geo.Coordinate
}

type marker struct {
	Position [2]float64 `json:"position"`
	Color    string     `json:"color"`
	Popup    string     `json:"popup"`
}

type mapData struct {
	Center      [2]float64   `json:"center"`
	Zoom        int          `json:"zoom"`
	Tiles       string       `json:"tiles"`
	Attribution string       `json:"attribution"`
	Path        [][2]float64 `json:"path"`
	LineColor   string       `json:"lineColor"`
	LineWeight  int          `json:"lineWeight"`
	Markers     []marker     `json:"markers"`
}

var documentTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="stylesheet" href="{{.CSS}}">
<script src="{{.JS}}"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var data = {{.Data}};
var map = L.map("map").setView(data.center, data.zoom);
L.tileLayer(data.tiles, { attribution: data.attribution, maxZoom: 19 }).addTo(map);
if (data.path.length > 1) {
  L.polyline(data.path, { color: data.lineColor, weight: data.lineWeight }).addTo(map);
}
data.markers.forEach(function (m) {
  L.circleMarker(m.position, { color: m.color, fillColor: m.color, fillOpacity: 0.9, radius: 8 })
    .bindPopup(m.popup)
    .addTo(map);
});
</script>
</body>
</html>`))

var frameTemplate = template.Must(template.New("frame").Parse(
	`<div class="route-map"><iframe title="Route map" sandbox="allow-scripts allow-popups" style="width: 100%; height: {{.Height}}px; border: 0;" srcdoc="{{.Document}}"></iframe></div>`))

// Renderer produces map fragments.
type Renderer struct {
	cfg    Config
	policy *bluemonday.Policy
}

// NewRenderer applies defaults to cfg.
func NewRenderer(cfg Config) *Renderer {
	if strings.TrimSpace(cfg.TileURL) == "" {
		cfg.TileURL = defaultTileURL
	}
	if strings.TrimSpace(cfg.Attribution) == "" {
		cfg.Attribution = defaultAttribution
	}
	if cfg.Zoom <= 0 {
		cfg.Zoom = defaultZoom
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	return &Renderer{cfg: cfg, policy: bluemonday.StrictPolicy()}
}

// Render returns an iframe fragment embedding the map document. The map is
// centred on the first stop; the first stop is green, the last red.
func (r *Renderer) Render(route Route) (template.HTML, error) {
	if len(route.Stops) == 0 {
		return "", ErrNoPoints
	}
	data := mapData{
		Center:      route.Stops[0].Coordinate.LatLng(),
		Zoom:        r.cfg.Zoom,
		Tiles:       r.cfg.TileURL,
		Attribution: r.cfg.Attribution,
		Path:        make([][2]float64, 0, len(route.Path)),
		LineColor:   lineColor,
		LineWeight:  lineWeight,
		Markers:     make([]marker, 0, len(route.Stops)),
	}
	for _, p := range route.Path {
		data.Path = append(data.Path, p.LatLng())
	}
	last := len(route.Stops) - 1
	for i, stop := range route.Stops {
		color := colorStop
		switch i {
		case 0:
			color = colorStart
		case last:
			color = colorEnd
		}
		data.Markers = append(data.Markers, marker{
			Position: stop.Coordinate.LatLng(),
			Color:    color,
			Popup:    r.policy.Sanitize(stop.Address),
		})
	}

	var doc bytes.Buffer
	if err := documentTemplate.Execute(&doc, struct {
		CSS, JS string
		Data    mapData
	}{leafletCSS, leafletJS, data}); err != nil {
		return "", fmt.Errorf("mapview: render document: %w", err)
	}

	var frame bytes.Buffer
	if err := frameTemplate.Execute(&frame, struct {
		Height   int
		Document string
	}{r.cfg.Height, doc.String()}); err != nil {
		return "", fmt.Errorf("mapview: render frame: %w", err)
	}
	return template.HTML(frame.String()), nil
}
