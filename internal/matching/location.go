package matching

import (
	"math"
	"strings"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

const (
	earthRadiusKm        = 6371.0
	defaultMaxDistanceKm = 50.0
)

// LocationFilter is the hard gate in front of the scorer. Candidates it
// rejects never reach validation or scoring.
type LocationFilter struct {
	maxDistanceKm float64
}

// NewLocationFilter creates a filter with the configured default radius.
func NewLocationFilter(maxDistanceKm float64) *LocationFilter {
	if maxDistanceKm <= 0 {
		maxDistanceKm = defaultMaxDistanceKm
	}
	return &LocationFilter{maxDistanceKm: maxDistanceKm}
}

// Matches evaluates the location predicate: an exact location-id hit accepts
// immediately; otherwise each buyer location is tried in order — a state
// mismatch rejects that location, a city match accepts, and a coordinate pair
// within the radius accepts.
func (f *LocationFilter) Matches(req *types.Requirement, avail *types.Availability) bool {
	for _, loc := range req.DeliveryLocations {
		if loc.LocationID != "" && loc.LocationID == avail.LocationID {
			return true
		}
	}

	for _, loc := range req.DeliveryLocations {
		if loc.State != "" && avail.State != "" && !strings.EqualFold(loc.State, avail.State) {
			continue
		}
		if loc.City != "" && avail.City != "" && strings.EqualFold(loc.City, avail.City) {
			return true
		}
		if loc.Latitude != nil && loc.Longitude != nil && avail.Latitude != nil && avail.Longitude != nil {
			radius := f.maxDistanceKm
			if loc.MaxDistanceKm != nil {
				radius = *loc.MaxDistanceKm
			}
			if haversineKm(*loc.Latitude, *loc.Longitude, *avail.Latitude, *avail.Longitude) <= radius {
				return true
			}
		}
	}
	return false
}

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
