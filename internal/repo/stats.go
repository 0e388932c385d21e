// Package repo implements the data persistence layer for the car catalog,
// backed by GORM. This file provides the aggregate queries behind the
// operator-facing coverage statistics. Each function is read-only,
// context-aware, and safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-cars-backend/internal/domain"
)

// Stats is the catalog coverage snapshot reported by the admin surface.
//
// UnavailableCount is always zero from this subsystem's perspective:
// confirmed-unavailable rows are deleted rather than flagged, so historical
// unavailability has to be tracked elsewhere.
type Stats struct {
	TotalEntries     int64   `json:"total_entries"`
	NeverChecked     int64   `json:"never_checked"`
	Stale            int64   `json:"stale"`
	WithURL          int64   `json:"with_url"`
	UnavailableCount int64   `json:"unavailable_count"`
	URLCoveragePct   float64 `json:"url_coverage_pct"`
}

// AvailabilityStats computes the coverage snapshot in a single aggregate
// query. A row counts as stale when its last check is older than
// staleAfter (the regular sweep cadence); never-checked rows are counted
// separately and are not part of Stale.
func AvailabilityStats(ctx context.Context, db *gorm.DB, now time.Time, staleAfter time.Duration) (Stats, error) {
	var row struct {
		Total        int64
		NeverChecked int64
		Stale        int64
		WithURL      int64
	}

	err := db.WithContext(ctx).
		Model(&domain.Car{}).
		Select(
			"COUNT(*) AS total, "+
				"SUM(CASE WHEN last_checked_at IS NULL THEN 1 ELSE 0 END) AS never_checked, "+
				"SUM(CASE WHEN last_checked_at IS NOT NULL AND last_checked_at < ? THEN 1 ELSE 0 END) AS stale, "+
				"SUM(CASE WHEN listing_url IS NOT NULL AND TRIM(listing_url) <> '' THEN 1 ELSE 0 END) AS with_url",
			now.Add(-staleAfter),
		).
		Scan(&row).Error
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		TotalEntries: row.Total,
		NeverChecked: row.NeverChecked,
		Stale:        row.Stale,
		WithURL:      row.WithURL,
	}
	if s.TotalEntries > 0 {
		s.URLCoveragePct = float64(s.WithURL) / float64(s.TotalEntries) * 100
	}
	return s, nil
}
