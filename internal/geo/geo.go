package geo

import (
	"context"
	"math"
	"sync"
)

// Hit is one proximity result: a gathering id and its distance from the query
// point in kilometers, ascending by distance.
type Hit struct {
	ID         string
	DistanceKm float64
}

// Geo is the minimal interface the nearby handler needs.
type Geo interface {
	Upsert(ctx context.Context, id string, lat, lon float64) error
	Remove(ctx context.Context, id string) error
	Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]Hit, error)
}

// Index is an in-memory Geo used when Redis is unconfigured and as the
// fallback when it errors.
type Index struct {
	mu     sync.RWMutex
	coords map[string][2]float64
}

func NewIndex() *Index {
	return &Index{coords: make(map[string][2]float64)}
}

func (g *Index) Upsert(_ context.Context, id string, lat, lon float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.coords[id] = [2]float64{lat, lon}
	return nil
}

func (g *Index) Remove(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.coords, id)
	return nil
}

// naive scan; fine for single-node deployments, Redis GEO covers the rest
func (g *Index) Nearby(_ context.Context, lat, lon, radiusKm float64, limit int) ([]Hit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	arr := make([]Hit, 0, len(g.coords))
	for id, c := range g.coords {
		d := HaversineKm(lat, lon, c[0], c[1])
		if d <= radiusKm {
			arr = append(arr, Hit{ID: id, DistanceKm: d})
		}
	}
	// partial selection sort for top-N
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].DistanceKm < arr[minIdx].DistanceKm {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	return arr[:n], nil
}

// HaversineKm is the great-circle distance in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
