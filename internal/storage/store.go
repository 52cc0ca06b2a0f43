package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/food-donation/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrAlreadyClaimed is the authoritative conflict result: the store is the
	// sole arbiter of the one-claim-per-gathering invariant.
	ErrAlreadyClaimed = errors.New("gathering already claimed")
	ErrEmailTaken     = errors.New("email already registered")
)

// Store defines persistence for users, gatherings and claims.
type Store interface {
	CreateUser(ctx context.Context, u *models.User, passwordHash string) error
	UserByEmail(ctx context.Context, email string) (*models.User, string, error)
	UserByID(ctx context.Context, id string) (*models.User, error)

	CreateGathering(ctx context.Context, g *models.Gathering) error
	Gathering(ctx context.Context, id string) (*models.Gathering, error)
	AvailableGatherings(ctx context.Context, now time.Time, limit int) ([]models.Gathering, error)
	GatheringsByIDs(ctx context.Context, ids []string) ([]models.Gathering, error)
	GatheringsByDonor(ctx context.Context, donorID string) ([]models.Gathering, error)

	// ClaimGathering atomically marks the gathering taken and records the
	// claim. Returns ErrAlreadyClaimed when another recipient won, ErrNotFound
	// for an unknown gathering.
	ClaimGathering(ctx context.Context, gatheringID, recipientID string, at time.Time) (*models.Claim, error)
	Claim(ctx context.Context, id string) (*models.Claim, error)
	ClaimsByRecipient(ctx context.Context, recipientID string) ([]models.Claim, error)
	ClaimsByGatheringIDs(ctx context.Context, gatheringIDs []string) ([]models.Claim, error)
	// UpdateClaimStatus transitions the claim; cancelling reopens the gathering.
	UpdateClaimStatus(ctx context.Context, claimID string, status models.ClaimStatus) (*models.Claim, error)
}

// MemoryStore is the zero-dependency Store used when PG_DSN is unset and in
// tests. All mutations are mutex-guarded so the claim check-and-set is atomic.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[string]*models.User
	passwords  map[string]string // user id -> bcrypt hash
	gatherings map[string]*models.Gathering
	claims     map[string]*models.Claim
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*models.User),
		passwords:  make(map[string]string),
		gatherings: make(map[string]*models.Gathering),
		claims:     make(map[string]*models.Claim),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	m.users[u.ID] = &cp
	m.passwords[u.ID] = passwordHash
	return nil
}

func (m *MemoryStore) UserByEmail(_ context.Context, email string) (*models.User, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, m.passwords[u.ID], nil
		}
	}
	return nil, "", ErrNotFound
}

func (m *MemoryStore) UserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) CreateGathering(_ context.Context, g *models.Gathering) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	cp := *g
	m.gatherings[g.ID] = &cp
	return nil
}

func (m *MemoryStore) Gathering(_ context.Context, id string) (*models.Gathering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gatherings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *MemoryStore) AvailableGatherings(_ context.Context, now time.Time, limit int) ([]models.Gathering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Gathering, 0)
	for _, g := range m.gatherings {
		if g.IsClaimed || !g.AvailableAt(now) {
			continue
		}
		out = append(out, *g)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) GatheringsByIDs(_ context.Context, ids []string) ([]models.Gathering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Gathering, 0, len(ids))
	for _, id := range ids {
		if g, ok := m.gatherings[id]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *MemoryStore) GatheringsByDonor(_ context.Context, donorID string) ([]models.Gathering, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Gathering, 0)
	for _, g := range m.gatherings {
		if g.DonorID == donorID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *MemoryStore) ClaimGathering(_ context.Context, gatheringID, recipientID string, at time.Time) (*models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gatherings[gatheringID]
	if !ok {
		return nil, ErrNotFound
	}
	if g.IsClaimed {
		return nil, ErrAlreadyClaimed
	}
	g.IsClaimed = true
	c := &models.Claim{
		ID:          uuid.NewString(),
		GatheringID: gatheringID,
		RecipientID: recipientID,
		ClaimTime:   at,
		Status:      models.ClaimStatusClaimed,
	}
	m.claims[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) Claim(_ context.Context, id string) (*models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ClaimsByRecipient(_ context.Context, recipientID string) ([]models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Claim, 0)
	for _, c := range m.claims {
		if c.RecipientID == recipientID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MemoryStore) ClaimsByGatheringIDs(_ context.Context, gatheringIDs []string) ([]models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(gatheringIDs))
	for _, id := range gatheringIDs {
		wanted[id] = true
	}
	out := make([]models.Claim, 0)
	for _, c := range m.claims {
		if wanted[c.GatheringID] {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateClaimStatus(_ context.Context, claimID string, status models.ClaimStatus) (*models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[claimID]
	if !ok {
		return nil, ErrNotFound
	}
	if status == models.ClaimStatusCancelled && c.Status != models.ClaimStatusCancelled {
		if g, ok := m.gatherings[c.GatheringID]; ok {
			g.IsClaimed = false
		}
	}
	c.Status = status
	cp := *c
	return &cp, nil
}
