package geo

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/peterstace/simplefeatures/geom"
)

// Kind represents the drawing kind of a feature
type Kind int

const (
	KindPoint Kind = iota
	KindLine
	KindPolygon
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Feature is a decoded GeoJSON feature ready for rendering.
// Anchor is where the marker glyph and popup attach; Paths holds outlines
// for lines and polygon rings.
type Feature struct {
	ID         string
	Name       string
	Kind       Kind
	Anchor     LatLng
	Paths      [][]LatLng
	Properties map[string]interface{}
}

// ParseFeatureCollection decodes a GeoJSON FeatureCollection, a single Feature
// or a bare geometry. Features with empty or unreadable geometries are
// skipped. Geometries that fail validation (self-intersecting rings and the
// like) are kept and anchored at the centre of their bounding box.
func ParseFeatureCollection(data []byte) ([]Feature, error) {
	var doc struct {
		Type     string       `json:"type"`
		Features []rawFeature `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid geojson: %w", err)
	}

	var raw []rawFeature
	switch doc.Type {
	case "FeatureCollection":
		raw = doc.Features
	case "Feature":
		var f rawFeature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("invalid feature: %w", err)
		}
		raw = []rawFeature{f}
	default:
		if _, _, err := parseGeometry(data); err != nil {
			return nil, fmt.Errorf("invalid geometry: %w", err)
		}
		raw = []rawFeature{{Geometry: data}}
	}

	features := make([]Feature, 0, len(raw))
	for i, f := range raw {
		feat, ok := convertFeature(f, i)
		if ok {
			features = append(features, feat)
		}
	}
	return features, nil
}

// rawFeature keeps the geometry undecoded so each one is parsed on its own
type rawFeature struct {
	ID         interface{}            `json:"id"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// parseGeometry decodes a GeoJSON geometry, retrying without validation when
// the strict decode rejects it. valid reports whether the strict decode passed.
func parseGeometry(raw json.RawMessage) (g geom.Geometry, valid bool, err error) {
	g, err = geom.UnmarshalGeoJSON(raw)
	if err == nil {
		return g, true, nil
	}
	g, lenientErr := geom.UnmarshalGeoJSON(raw, geom.DisableAllValidations)
	if lenientErr != nil {
		return geom.Geometry{}, false, err
	}
	return g, false, nil
}

func convertFeature(f rawFeature, index int) (Feature, bool) {
	if len(f.Geometry) == 0 || string(f.Geometry) == "null" {
		return Feature{}, false
	}
	g, valid, err := parseGeometry(f.Geometry)
	if err != nil || g.IsEmpty() {
		return Feature{}, false
	}

	props := f.Properties
	if props == nil {
		props = make(map[string]interface{})
	}

	feat := Feature{
		ID:         featureID(f.ID, props, index),
		Name:       PropString(props, "name", "NAME", "Name", "title", "place"),
		Properties: props,
	}

	switch g.Type() {
	case geom.TypePoint, geom.TypeMultiPoint:
		feat.Kind = KindPoint
	case geom.TypeLineString, geom.TypeMultiLineString:
		feat.Kind = KindLine
		feat.Paths = linePaths(g)
	case geom.TypePolygon, geom.TypeMultiPolygon:
		feat.Kind = KindPolygon
		feat.Paths = ringPaths(g)
	default:
		feat.Kind = KindPoint
	}

	// Centroid assumes a valid geometry
	anchor := g.Envelope().Center()
	if valid {
		anchor = g.Centroid()
	}
	xy, ok := anchor.XY()
	if !ok {
		return Feature{}, false
	}
	feat.Anchor = LatLng{Lat: xy.Y, Lng: xy.X}
	return feat, true
}

// linePaths splits a (multi) line geometry into coordinate paths
func linePaths(g geom.Geometry) [][]LatLng {
	var paths [][]LatLng
	for _, part := range g.Dump() {
		if path := sequencePath(part.DumpCoordinates()); len(path) > 0 {
			paths = append(paths, path)
		}
	}
	return paths
}

// ringPaths returns every exterior and interior ring of a (multi) polygon
func ringPaths(g geom.Geometry) [][]LatLng {
	var paths [][]LatLng
	for _, part := range g.Dump() {
		poly, ok := part.AsPolygon()
		if !ok {
			continue
		}
		for _, ring := range poly.DumpRings() {
			if path := sequencePath(ring.Coordinates()); len(path) > 0 {
				paths = append(paths, path)
			}
		}
	}
	return paths
}

func sequencePath(seq geom.Sequence) []LatLng {
	path := make([]LatLng, 0, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		path = append(path, LatLng{Lat: xy.Y, Lng: xy.X})
	}
	return path
}

func featureID(id interface{}, props map[string]interface{}, index int) string {
	switch v := id.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if s := PropString(props, "id", "ID"); s != "" {
		return s
	}
	return "feature-" + strconv.Itoa(index)
}

// PropString returns the first non-empty property among keys, stringified
func PropString(props map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := props[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

// PropFloat returns the first numeric property among keys
func PropFloat(props map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := props[key].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
