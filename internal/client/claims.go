package client

import (
	"context"
	"errors"
	"sync"

	"github.com/example/food-donation/internal/models"
)

// ClaimOutcome is the coordinator's tri-state result.
type ClaimOutcome int

const (
	ClaimFailure ClaimOutcome = iota
	ClaimSuccess
	ClaimConflict
)

// GatheringView is the locally held, possibly stale list backing one page
// view. The view layer excludes claimed items on render; the coordinator only
// marks them.
type GatheringView struct {
	mu    sync.Mutex
	items []models.Gathering
}

func NewGatheringView(items []models.Gathering) *GatheringView {
	return &GatheringView{items: append([]models.Gathering(nil), items...)}
}

// Items returns the gatherings a recipient should see: unclaimed, in the
// order the view holds them.
func (v *GatheringView) Items() []models.Gathering {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Gathering, 0, len(v.items))
	for _, g := range v.items {
		if !g.IsClaimed {
			out = append(out, g)
		}
	}
	return out
}

// Item returns the view's copy of one gathering, claimed or not.
func (v *GatheringView) Item(id string) (models.Gathering, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, g := range v.items {
		if g.ID == id {
			return g, true
		}
	}
	return models.Gathering{}, false
}

func (v *GatheringView) markClaimed(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.items {
		if v.items[i].ID == id {
			v.items[i].IsClaimed = true
			return
		}
	}
}

// ClaimCoordinator submits exclusive claims and reconciles the local view
// with the authoritative result. The backend is the sole arbiter of
// exclusivity; the coordinator never assumes it won a local race.
type ClaimCoordinator struct {
	api  *APIClient
	view *GatheringView
}

func NewClaimCoordinator(api *APIClient, view *GatheringView) *ClaimCoordinator {
	return &ClaimCoordinator{api: api, view: view}
}

// Claim issues one claim request. On success the item is marked claimed in
// the view (not removed, so a confirmation can still render). On conflict or
// failure the view is untouched and no retry is attempted. A result arriving
// after ctx is cancelled is discarded, so navigating away from the view
// cannot corrupt it.
func (c *ClaimCoordinator) Claim(ctx context.Context, gatheringID string) (ClaimOutcome, error) {
	_, err := c.api.CreateClaim(ctx, gatheringID)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			return ClaimConflict, err
		}
		return ClaimFailure, err
	}
	if ctx.Err() != nil {
		// the view this claim belonged to is gone; leave state alone
		return ClaimSuccess, nil
	}
	c.view.markClaimed(gatheringID)
	return ClaimSuccess, nil
}
