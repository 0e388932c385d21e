// Package domain defines the persistence models for the car catalog and its
// denormalized feature rows. These types are mapped with GORM and form the
// core data layer of the availability checker.
package domain

import (
	"strings"
	"time"
)

// Car status values. The availability checker only ever touches rows in
// StatusAvailable; purchase flows move rows to StatusSold and those rows
// must never be re-checked or deleted by this subsystem.
const (
	StatusAvailable = "available"
	StatusSold      = "sold"
)

// Car represents one listing record in the marketplace catalog. Rows are
// created by the ingestion scraper and mutated by the availability checker
// (metadata refresh or deletion) and by the purchase flow (status change).
//
// Checker-relevant fields:
//   - ID: opaque unique identifier, primary key.
//   - ListingURL: absolute URL to the source listing; rows with an empty
//     URL are never probed and never deleted.
//   - LastCheckedAt: timestamp of the most recent probe; nil means never
//     checked.
//   - CheckAttempts: consecutive failed probe attempts since the last
//     success; drives the priority re-check cadence and, when the delete
//     threshold is raised above one, the multi-strike deletion gate.
//   - UnavailableSince: set when a row first fails a check; cleared again
//     on a successful one.
//   - Status: "available" or "sold"; candidate selection and deletion are
//     both restricted to "available" rows so a concurrent sale wins any
//     race with the checker.
type Car struct {
	ID               string     `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Brand            string     `json:"brand"      gorm:"type:varchar(64);index"`
	Model            string     `json:"model"      gorm:"type:varchar(64);index"`
	Price            float64    `json:"price"      gorm:"index"`
	Mileage          float64    `json:"mileage"`
	Year             int        `json:"year"`
	Country          string     `json:"country"    gorm:"type:varchar(64)"`
	ListingURL       string     `json:"listing_url" gorm:"type:text"`
	Status           string     `json:"status"     gorm:"type:varchar(16);not null;default:'available';index"`
	LastCheckedAt    *time.Time `json:"last_checked_at" gorm:"index"`
	CheckAttempts    int        `json:"check_attempts" gorm:"not null;default:0"`
	UnavailableSince *time.Time `json:"unavailable_since"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Car.
func (Car) TableName() string { return "cars" }

// HasListingURL reports whether the row carries a usable listing URL.
// Rows without one are excluded from every check cycle.
func (c Car) HasListingURL() bool { return strings.TrimSpace(c.ListingURL) != "" }

// CarFeature is one row of the denormalized feature index kept alongside the
// catalog (e.g. "leather seats", "navigation"). Feature rows reference cars
// by identifier only; when the checker deletes a car it must delete the
// car's feature rows in the same transaction so no orphans remain.
type CarFeature struct {
	ID      uint   `json:"id"      gorm:"primaryKey;autoIncrement"`
	CarID   string `json:"car_id"  gorm:"type:varchar(64);not null;index"`
	Feature string `json:"feature" gorm:"type:varchar(128);not null"`
}

// TableName returns the database table name for CarFeature.
func (CarFeature) TableName() string { return "car_features" }
