package export

import (
	"encoding/json"
	"fmt"
)

// WriteJSON writes v as pretty-printed JSON to filename
func WriteJSON(v interface{}, filename string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return writeFile(filename, append(data, '\n'))
}

// ExportProfile writes a profile document to
// geopol_profile_{name}_{timestamp}.json in directory
func ExportProfile(name string, profile interface{}, directory string) (string, error) {
	filename := GenerateFilename("geopol_profile_"+SafeName(name), "json", directory)
	if err := WriteJSON(profile, filename); err != nil {
		return "", err
	}
	return filename, nil
}
