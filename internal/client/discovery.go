package client

import (
	"context"
	"log/slog"

	"github.com/example/food-donation/internal/models"
)

// DiscoveryService fetches candidate gatherings near a coordinate with a
// two-tier retrieval strategy: the proximity query first, then the full
// unfiltered listing when that fails for any reason. Discovery degrades
// rather than blocking the recipient from seeing offers.
type DiscoveryService struct {
	api    *APIClient
	logger *slog.Logger
}

func NewDiscoveryService(api *APIClient, logger *slog.Logger) *DiscoveryService {
	return &DiscoveryService{api: api, logger: logger}
}

// FindGatherings returns displayable gatherings near (lat, lon). Claimed
// items are always filtered client-side: the fallback listing in particular
// may include them. Results from the fallback carry no distance annotations
// and no ordering guarantee.
func (d *DiscoveryService) FindGatherings(ctx context.Context, lat, lon float64) ([]models.Gathering, error) {
	list, err := d.api.NearbyGatherings(ctx, lat, lon)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Warn("proximity query failed, falling back to full listing", "error", err)
		list, err = d.api.AllGatherings(ctx)
		if err != nil {
			return nil, err
		}
	}
	out := make([]models.Gathering, 0, len(list))
	for _, g := range list {
		if g.IsClaimed {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}
