package domain

import "time"

// DriftStatus classifies one audited place.
type DriftStatus string

const (
	DriftAccurate DriftStatus = "accurate"
	DriftWarning  DriftStatus = "warning"
	DriftError    DriftStatus = "error"
)

// DefaultDriftThresholdMeters separates accurate from drifted coordinates.
const DefaultDriftThresholdMeters = 50.0

// TrustedLocation is a curated name with coordinates known to be correct.
type TrustedLocation struct {
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// DriftFinding is the audit outcome for one trusted location.
type DriftFinding struct {
	Name              string      `json:"name"`
	Status            DriftStatus `json:"status"`
	TrustedLatitude   float64     `json:"trusted_latitude"`
	TrustedLongitude  float64     `json:"trusted_longitude"`
	ResolvedLatitude  float64     `json:"resolved_latitude,omitempty"`
	ResolvedLongitude float64     `json:"resolved_longitude,omitempty"`
	PlaceID           string      `json:"place_id,omitempty"`
	FormattedAddress  string      `json:"formatted_address,omitempty"`
	DistanceMeters    float64     `json:"distance_meters"`
	CheckedAt         time.Time   `json:"checked_at"`
}

// DriftSummary counts findings by status.
type DriftSummary struct {
	Total    int `json:"total"`
	Accurate int `json:"accurate"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// DriftReport is the output of one audit run. Warnings are sorted by
// distance, largest first.
type DriftReport struct {
	Summary    DriftSummary   `json:"summary"`
	Findings   []DriftFinding `json:"findings"`
	Warnings   []DriftFinding `json:"warnings"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// ClassifyDrift maps a measured distance to a status. Distances at the
// threshold are still accurate.
func ClassifyDrift(distanceMeters, thresholdMeters float64) DriftStatus {
	if distanceMeters <= thresholdMeters {
		return DriftAccurate
	}
	return DriftWarning
}
