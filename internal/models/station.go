package models

import (
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// Field budgets reserved for a station at creation time
const (
	MaxStationNameLen        = 100
	MaxStationDescriptionLen = 200
)

// MaxRecycledCount is the largest recycled_count the stations table holds;
// the column is a signed 64-bit integer
const MaxRecycledCount uint64 = math.MaxInt64

// Station is a registered disposal point
type Station struct {
	ID            common.Address `json:"id" db:"id"`
	Owner         common.Address `json:"owner" db:"owner"`
	Name          string         `json:"name" db:"name"`
	Description   string         `json:"description" db:"description"`
	Latitude      float64        `json:"latitude" db:"latitude"`
	Longitude     float64        `json:"longitude" db:"longitude"`
	RecycledCount uint64         `json:"recycled_count" db:"recycled_count"`
	IsActive      bool           `json:"is_active" db:"is_active"`
	CreatedAt     int64          `json:"created_at" db:"created_at"`
}

// BoundingBox is a latitude/longitude rectangle in degrees
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// StationFilter for querying stations
type StationFilter struct {
	Owner  *common.Address `json:"owner,omitempty"`
	Active *bool           `json:"active,omitempty"`
	Bounds *BoundingBox    `json:"bounds,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// NearbyStation is a station with its distance from a query point
type NearbyStation struct {
	Station
	DistanceKm float64 `json:"distance_km"`
}
