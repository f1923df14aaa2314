package generation

import (
	"database/sql"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	generationsTable = "generations"
)

// GenerationRow is the database row for a generation run
type GenerationRow struct {
	ID                    string         `db:"id"`
	Dataset               string         `db:"dataset"`
	Year                  int            `db:"year"`
	Status                string         `db:"status"`
	OutputPath            string         `db:"output_path"`
	PersonCount           int            `db:"person_count"`
	HouseholdCount        int            `db:"household_count"`
	SPMUnitCount          int            `db:"spm_unit_count"`
	DroppedPersonCount    int            `db:"dropped_person_count"`
	DroppedHouseholdCount int            `db:"dropped_household_count"`
	OrphanedSPMUnitCount  int            `db:"orphaned_spm_unit_count"`
	Error                 sql.NullString `db:"error"`
	StartedAt             time.Time      `db:"started_at"`
	CompletedAt           sql.NullTime   `db:"completed_at"`
}

func FromGeneration(g *models.Generation) *GenerationRow {
	row := &GenerationRow{
		ID:                    g.ID,
		Dataset:               g.Dataset,
		Year:                  g.Year,
		Status:                string(g.Status),
		OutputPath:            g.OutputPath,
		PersonCount:           g.PersonCount,
		HouseholdCount:        g.HouseholdCount,
		SPMUnitCount:          g.SPMUnitCount,
		DroppedPersonCount:    g.DroppedPersonCount,
		DroppedHouseholdCount: g.DroppedHouseholdCount,
		OrphanedSPMUnitCount:  g.OrphanedSPMUnitCount,
		Error:                 sql.NullString{String: g.Error, Valid: true},
		StartedAt:             g.StartedAt,
	}
	if g.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *g.CompletedAt, Valid: true}
	}
	return row
}

func ToGeneration(row *GenerationRow) *models.Generation {
	g := &models.Generation{
		ID:                    row.ID,
		Dataset:               row.Dataset,
		Year:                  row.Year,
		Status:                models.GenerationStatus(row.Status),
		OutputPath:            row.OutputPath,
		PersonCount:           row.PersonCount,
		HouseholdCount:        row.HouseholdCount,
		SPMUnitCount:          row.SPMUnitCount,
		DroppedPersonCount:    row.DroppedPersonCount,
		DroppedHouseholdCount: row.DroppedHouseholdCount,
		OrphanedSPMUnitCount:  row.OrphanedSPMUnitCount,
		Error:                 row.Error.String,
		StartedAt:             row.StartedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		completed := row.CompletedAt.Time.UTC()
		g.CompletedAt = &completed
	}
	return g
}

func ToGenerations(rows []GenerationRow) []*models.Generation {
	out := make([]*models.Generation, len(rows))
	for i := range rows {
		out[i] = ToGeneration(&rows[i])
	}
	return out
}

// Now returns the current time in UTC, truncated to what every catalog driver
// stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
