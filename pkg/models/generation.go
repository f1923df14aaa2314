package models

import "time"

type GenerationStatus string

const (
	GenerationRunning   GenerationStatus = "running"
	GenerationSucceeded GenerationStatus = "succeeded"
	GenerationFailed    GenerationStatus = "failed"
)

// Generation records one generate(year) run for a dataset.
type Generation struct {
	ID                    string           `json:"id"`
	Dataset               string           `json:"dataset"`
	Year                  int              `json:"year"`
	Status                GenerationStatus `json:"status"`
	OutputPath            string           `json:"output_path,omitempty"`
	PersonCount           int              `json:"person_count"`
	HouseholdCount        int              `json:"household_count"`
	SPMUnitCount          int              `json:"spm_unit_count"`
	DroppedPersonCount    int              `json:"dropped_person_count"`
	DroppedHouseholdCount int              `json:"dropped_household_count"`
	OrphanedSPMUnitCount  int              `json:"orphaned_spm_unit_count"`
	Error                 string           `json:"error,omitempty"`
	StartedAt             time.Time        `json:"started_at"`
	CompletedAt           *time.Time       `json:"completed_at,omitempty"`
}

// GenerationResult is what a successful run reports back to the catalog.
type GenerationResult struct {
	OutputPath            string
	PersonCount           int
	HouseholdCount        int
	SPMUnitCount          int
	DroppedPersonCount    int
	DroppedHouseholdCount int
	OrphanedSPMUnitCount  int
}
