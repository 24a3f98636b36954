package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/geopol/geopol-go/internal/geo"
	"github.com/geopol/geopol-go/internal/maphost"
)

// MarkerSet is the markers of one overlay
type MarkerSet struct {
	Overlay string
	Markers []maphost.Marker
}

// ExportMarkers exports markers to CSV format. Each row carries its great
// circle distance from origin, usually the map centre.
func ExportMarkers(sets []MarkerSet, origin geo.LatLng, directory string) (string, error) {
	filename := GenerateFilename("geopol_markers", "csv", directory)
	if err := ExportMarkersToFile(sets, origin, filename); err != nil {
		return "", err
	}
	return filename, nil
}

// ExportMarkersToFile exports markers to a specific CSV file
func ExportMarkersToFile(sets []MarkerSet, origin geo.LatLng, filename string) error {
	if dir := filepath.Dir(filename); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"overlay",
		"id",
		"lat",
		"lng",
		"distance_km",
		"tooltip",
		"details",
		"timestamp",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	timestamp := time.Now().Format(time.RFC3339)
	for _, set := range sets {
		for _, m := range set.Markers {
			row := []string{
				set.Overlay,
				m.ID,
				formatFloat(m.Position.Lat),
				formatFloat(m.Position.Lng),
				strconv.FormatFloat(geo.HaversineDistance(origin, m.Position), 'f', 1, 64),
				m.Tooltip,
				formatPopup(m.Popup),
				timestamp,
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', 5, 64)
}

// formatPopup renders popup fields as "Key=Value; Key=Value" in key order
func formatPopup(p map[string]string) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+p[k])
	}
	return strings.Join(parts, "; ")
}
