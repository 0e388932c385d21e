// Package repo implements the data persistence layer for the car catalog,
// backed by GORM. This file provides the repository functions used by the
// availability checker: candidate selection and the per-sub-batch outcome
// writer.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only query
// composition and persistence.
//
// Error semantics:
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-cars-backend/internal/domain"
	"github.com/tbourn/go-cars-backend/internal/probe"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// Re-check cadences. Priority mode targets rows that were never checked,
// have gone stale beyond a day, or failed recently and deserve a faster
// retry. Regular mode is the weekly broad sweep.
const (
	priorityStaleAfter = 24 * time.Hour
	priorityRetryAfter = 6 * time.Hour
	regularStaleAfter  = 7 * 24 * time.Hour

	// Rows with this many consecutive failures are no longer fast-tracked;
	// they fall back to the regular sweep.
	priorityMaxAttempts = 3
)

// ListCandidates selects up to limit catalog rows due for an availability
// probe. Rows without a usable listing URL are always excluded, as are rows
// no longer in "available" status (sold cars must never be re-checked).
//
// Selection in priority mode: never checked, OR last checked more than 24h
// ago, OR previously flaky (1 <= check_attempts < 3) and last checked more
// than 6h ago. In regular mode: never checked, OR last checked more than
// 7 days ago.
//
// Order is randomized so repeated capped runs do not keep re-checking the
// same head-of-table rows.
func ListCandidates(ctx context.Context, db *gorm.DB, priority bool, now time.Time, limit int) ([]domain.Car, error) {
	q := db.WithContext(ctx).
		Model(&domain.Car{}).
		Where("listing_url IS NOT NULL AND TRIM(listing_url) <> ''").
		Where("status = ?", domain.StatusAvailable)

	if priority {
		q = q.Where(
			"last_checked_at IS NULL OR last_checked_at < ? OR (check_attempts >= 1 AND check_attempts < ? AND last_checked_at < ?)",
			now.Add(-priorityStaleAfter), priorityMaxAttempts, now.Add(-priorityRetryAfter),
		)
	} else {
		q = q.Where(
			"last_checked_at IS NULL OR last_checked_at < ?",
			now.Add(-regularStaleAfter),
		)
	}

	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []domain.Car
	err := q.Order("RANDOM()").Find(&out).Error
	return out, err
}

// ApplyResult summarizes what one ApplyOutcomes call changed.
type ApplyResult struct {
	// Refreshed is the number of rows confirmed available and stamped.
	Refreshed int
	// Deleted is the number of catalog rows removed (plus their feature
	// rows) because the listing is gone or has exhausted its failure
	// allowance.
	Deleted int
	// Flagged is the number of rows that failed this check but survived
	// because their attempt count is still under the delete threshold.
	Flagged int
}

// ApplyOutcomes writes one sub-batch of probe outcomes to the catalog in a
// single transaction:
//
//   - StatusAvailable rows get last_checked_at = now, check_attempts = 0,
//     and unavailable_since cleared; nothing else on the row is touched.
//   - StatusGone rows are deleted immediately, together with their
//     car_features rows.
//   - StatusUnknown rows get check_attempts incremented, last_checked_at
//     stamped, and unavailable_since set on first failure; rows whose
//     attempt count reaches deleteAfter are then deleted like gone rows.
//     With deleteAfter <= 1 (the default policy) every failed check
//     deletes immediately.
//
// Every delete is guarded by status = 'available' so a row concurrently
// marked sold is left alone; the delete becomes a no-op for it.
//
// The transaction is all-or-nothing: an error rolls back this sub-batch
// without affecting earlier, already-committed sub-batches.
func ApplyOutcomes(ctx context.Context, db *gorm.DB, outcomes []probe.Outcome, now time.Time, deleteAfter int) (ApplyResult, error) {
	if deleteAfter < 1 {
		deleteAfter = 1
	}

	var available, gone, unknown []string
	for _, o := range outcomes {
		switch o.Status {
		case probe.StatusAvailable:
			available = append(available, o.CarID)
		case probe.StatusGone:
			gone = append(gone, o.CarID)
		default:
			unknown = append(unknown, o.CarID)
		}
	}

	var res ApplyResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(available) > 0 {
			r := tx.Model(&domain.Car{}).
				Where("id IN ?", available).
				Updates(map[string]any{
					"last_checked_at":   now,
					"check_attempts":    0,
					"unavailable_since": nil,
				})
			if r.Error != nil {
				return r.Error
			}
			res.Refreshed = int(r.RowsAffected)
		}

		if len(unknown) > 0 {
			r := tx.Model(&domain.Car{}).
				Where("id IN ?", unknown).
				Updates(map[string]any{
					"check_attempts":    gorm.Expr("check_attempts + 1"),
					"last_checked_at":   now,
					"unavailable_since": gorm.Expr("COALESCE(unavailable_since, ?)", now),
				})
			if r.Error != nil {
				return r.Error
			}

			// Failures that reached the threshold are deleted below with
			// the definitively-gone rows.
			var exhausted []string
			if err := tx.Model(&domain.Car{}).
				Where("id IN ? AND check_attempts >= ?", unknown, deleteAfter).
				Pluck("id", &exhausted).Error; err != nil {
				return err
			}
			res.Flagged = len(unknown) - len(exhausted)
			gone = append(gone, exhausted...)
		}

		if len(gone) > 0 {
			deleted, err := deleteCars(tx, gone)
			if err != nil {
				return err
			}
			res.Deleted = deleted
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}
	return res, nil
}

// deleteCars removes the given catalog rows and their feature rows inside
// the caller's transaction. Only rows still in "available" status are
// removed; the returned count reflects actual deletions.
func deleteCars(tx *gorm.DB, ids []string) (int, error) {
	// Resolve the ids that are actually deletable first so the feature
	// cleanup matches the car deletion exactly (no orphans either way).
	var deletable []string
	if err := tx.Model(&domain.Car{}).
		Where("id IN ? AND status = ?", ids, domain.StatusAvailable).
		Pluck("id", &deletable).Error; err != nil {
		return 0, err
	}
	if len(deletable) == 0 {
		return 0, nil
	}

	if err := tx.Where("car_id IN ?", deletable).Delete(&domain.CarFeature{}).Error; err != nil {
		return 0, err
	}
	r := tx.Where("id IN ?", deletable).Delete(&domain.Car{})
	if r.Error != nil {
		return 0, r.Error
	}
	return int(r.RowsAffected), nil
}

// RecentChecks returns the most recently probed rows, newest first, for the
// admin activity view. Rows never checked are excluded.
func RecentChecks(ctx context.Context, db *gorm.DB, limit int) ([]domain.Car, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Car
	err := db.WithContext(ctx).
		Where("last_checked_at IS NOT NULL").
		Order("last_checked_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
