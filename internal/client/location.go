package client

import (
	"context"

	"github.com/example/food-donation/internal/models"
)

// LocationManager captures and resolves the user's chosen coordinate.
type LocationManager struct {
	api   *APIClient
	store SessionStore
}

func NewLocationManager(api *APIClient, store SessionStore) *LocationManager {
	return &LocationManager{api: api, store: store}
}

// SetLocation validates the coordinate and writes it through the session
// store.
func (l *LocationManager) SetLocation(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "latitude", Reason: "must be within [-90, 90]"}
	}
	if lon < -180 || lon > 180 {
		return &ValidationError{Field: "longitude", Reason: "must be within [-180, 180]"}
	}
	l.store.UpdateUserLocation(lat, lon)
	return nil
}

// Location returns the currently known coordinate. The locally cached
// session location wins because it reflects the most recent SetLocation;
// the server profile only seeds users who registered with coordinates and
// have not picked a location in this session. Callers must treat the absent
// case as "location not yet established" and send the user to the
// location-selection flow instead of querying discovery.
func (l *LocationManager) Location(ctx context.Context) (models.Coord, bool) {
	if s, ok := l.store.Load(); ok && s.User.HasLocation() {
		return models.Coord{Lat: *s.User.Latitude, Lon: *s.User.Longitude}, true
	}
	if u, err := l.api.Profile(ctx); err == nil && u.HasLocation() {
		return models.Coord{Lat: *u.Latitude, Lon: *u.Longitude}, true
	}
	return models.Coord{}, false
}
