package audit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sachanni/salonhub-geocache/internal/domain"
)

// LoadTrustedLocations reads a YAML list of {name, latitude, longitude}.
func LoadTrustedLocations(path string) ([]domain.TrustedLocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trusted locations: %w", err)
	}
	return ParseTrustedLocations(data)
}

// ParseTrustedLocations decodes and validates a trusted location list.
func ParseTrustedLocations(data []byte) ([]domain.TrustedLocation, error) {
	var entries []domain.TrustedLocation
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse trusted locations: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("trusted location %d: empty name", i)
		}
		if !domain.IsValidCoordinate(e.Latitude, e.Longitude) {
			return nil, fmt.Errorf("trusted location %d (%s): invalid coordinates %f,%f", i, e.Name, e.Latitude, e.Longitude)
		}
	}
	return entries, nil
}
