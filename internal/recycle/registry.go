package recycle

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/storage"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

const (
	earthRadiusKm = 6371.0
	kmPerDegree   = 111.0

	// DefaultStationPageSize bounds listings when the caller gives no limit
	DefaultStationPageSize = 100
)

// StationParams describes a station to register
type StationParams struct {
	// ID is the storage key of the station. A fresh address is generated
	// when it is nil.
	ID          *common.Address
	Owner       common.Address
	Name        string
	Description string
	Latitude    float64
	Longitude   float64
}

// Registry owns station records
type Registry struct {
	store   storage.Storage
	metrics *metrics.Manager
	logger  *logrus.Entry
	now     func() time.Time
}

// NewRegistry creates a station registry backed by store
func NewRegistry(store storage.Storage, metricsManager *metrics.Manager) *Registry {
	return &Registry{
		store:   store,
		metrics: metricsManager,
		logger:  utils.ComponentLogger("station_registry"),
		now:     time.Now,
	}
}

// CreateStation registers a new station owned by params.Owner
func (r *Registry) CreateStation(ctx context.Context, params StationParams) (*models.Station, error) {
	if len(params.Name) > models.MaxStationNameLen {
		return nil, utils.NewAppError(utils.ErrCodeInvalidName, "Station name too long",
			fmt.Sprintf("%d bytes, limit %d", len(params.Name), models.MaxStationNameLen))
	}
	if len(params.Description) > models.MaxStationDescriptionLen {
		return nil, utils.NewAppError(utils.ErrCodeInvalidDescription, "Station description too long",
			fmt.Sprintf("%d bytes, limit %d", len(params.Description), models.MaxStationDescriptionLen))
	}

	var id common.Address
	if params.ID != nil {
		id = *params.ID
	} else {
		generated, err := utils.NewRandomAddress()
		if err != nil {
			return nil, utils.WrapAppError(utils.ErrCodeInternal, "Failed to generate station id", err)
		}
		id = generated
	}

	station := &models.Station{
		ID:            id,
		Owner:         params.Owner,
		Name:          params.Name,
		Description:   params.Description,
		Latitude:      params.Latitude,
		Longitude:     params.Longitude,
		RecycledCount: 0,
		IsActive:      true,
		CreatedAt:     r.now().Unix(),
	}

	if err := r.store.CreateStation(ctx, station); err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.GetPrometheusMetrics().RecordStationCreated()
	}
	r.logger.WithFields(logrus.Fields{
		"station": station.ID.Hex(),
		"owner":   station.Owner.Hex(),
		"name":    station.Name,
	}).Info("Station created")

	return station, nil
}

// GetStation returns a station or NOT_FOUND
func (r *Registry) GetStation(ctx context.Context, id common.Address) (*models.Station, error) {
	return r.store.GetStation(ctx, id)
}

// ListStations lists stations matching filter
func (r *Registry) ListStations(ctx context.Context, filter models.StationFilter) ([]*models.Station, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultStationPageSize
	}
	return r.store.GetStations(ctx, filter)
}

// NearbyStations returns active stations within radiusKm of a point,
// closest first
func (r *Registry) NearbyStations(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]*models.NearbyStation, error) {
	if radiusKm <= 0 || math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Radius must be positive", fmt.Sprintf("%v", radiusKm))
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Coordinates out of range", fmt.Sprintf("%v,%v", lat, lon))
	}

	active := true
	candidates, err := r.store.GetStations(ctx, models.StationFilter{
		Active: &active,
		Bounds: boundingBox(lat, lon, radiusKm),
	})
	if err != nil {
		return nil, err
	}

	nearby := []*models.NearbyStation{}
	for _, station := range candidates {
		distance := haversineKm(lat, lon, station.Latitude, station.Longitude)
		if distance <= radiusKm {
			nearby = append(nearby, &models.NearbyStation{Station: *station, DistanceKm: distance})
		}
	}

	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})
	if limit > 0 && len(nearby) > limit {
		nearby = nearby[:limit]
	}
	return nearby, nil
}

// recordDisposal returns the station with recycled_count advanced by one.
// Only the ledger calls it, inside a disposal.
func (r *Registry) recordDisposal(station *models.Station) (*models.Station, error) {
	if station.RecycledCount >= models.MaxRecycledCount {
		return nil, utils.NewAppError(utils.ErrCodeOverflow, "Station recycled count overflow", station.ID.Hex())
	}
	next := *station
	next.RecycledCount++
	return &next, nil
}

// boundingBox pre-filters candidates in SQL. It returns nil when the box
// would wrap a pole or the antimeridian.
func boundingBox(lat, lon, radiusKm float64) *models.BoundingBox {
	latDelta := radiusKm / kmPerDegree * 1.5
	if math.Abs(lat)+latDelta >= 90 {
		return nil
	}
	lonDelta := radiusKm / (kmPerDegree * math.Cos(lat*math.Pi/180)) * 1.5
	if lon-lonDelta < -180 || lon+lonDelta > 180 {
		return nil
	}
	return &models.BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLon: lon - lonDelta,
		MaxLon: lon + lonDelta,
	}
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
