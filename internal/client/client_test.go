package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/food-donation/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestClient(t *testing.T, handler http.Handler) (*APIClient, *MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := NewMemoryStore()
	api := NewAPIClient(srv.URL, func() string {
		if s, ok := store.Load(); ok {
			return s.Credential
		}
		return ""
	})
	return api, store
}

func TestAuthManager_LoginRefetchesProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostFormValue("username") != "ana@example.com" || r.PostFormValue("password") != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "incorrect email or password"})
			return
		}
		// token endpoint deliberately omits user_type
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "token_type": "bearer"})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(models.User{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: models.RoleRecipient})
	})

	api, store := newTestClient(t, mux)
	am := NewAuthManager(api, store)

	s, err := am.Login(t.Context(), "ana@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleRecipient, s.User.Role, "role must come from the profile refetch")

	cached, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "u1", cached.User.ID)
}

func TestAuthManager_LoginKeepsUnknownRoleWhenRefetchFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "token_type": "bearer"})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	api, store := newTestClient(t, mux)
	am := NewAuthManager(api, store)

	s, err := am.Login(t.Context(), "ana@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUnknown, s.User.Role)
}

func TestAuthManager_LoginSurfacesServerDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "incorrect email or password"})
	})

	api, store := newTestClient(t, mux)
	am := NewAuthManager(api, store)

	_, err := am.Login(t.Context(), "ana@example.com", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "incorrect email or password", authErr.Detail)
}

func TestAuthManager_RegisterValidation(t *testing.T) {
	api, store := newTestClient(t, http.NewServeMux())
	am := NewAuthManager(api, store)

	lat := 1.0
	cases := []RegisterProfile{
		{Email: "a@b.c", Password: "pw", Role: models.RoleDonor},                              // missing name
		{Name: "A", Password: "pw", Role: models.RoleDonor},                                   // missing email
		{Name: "A", Email: "a@b.c", Role: models.RoleDonor},                                   // missing password
		{Name: "A", Email: "a@b.c", Password: "pw", Role: "admin"},                            // bad role
		{Name: "A", Email: "a@b.c", Password: "pw", Role: models.RoleDonor, Latitude: &lat},   // lat without lon
	}
	for i, p := range cases {
		_, err := am.Register(t.Context(), p)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "case %d", i)
	}
}

func gatheringList() []models.Gathering {
	d := 1.2
	return []models.Gathering{
		{ID: "g1", FoodDetails: "bread", DistanceKm: &d},
		{ID: "g2", FoodDetails: "soup", IsClaimed: true},
		{ID: "g3", FoodDetails: "rice"},
	}
}

func TestDiscovery_ProximityPathFiltersClaimed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gatherings/nearby", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(gatheringList())
	})
	api, _ := newTestClient(t, mux)
	ds := NewDiscoveryService(api, discardLogger())

	got, err := ds.FindGatherings(t.Context(), 37.77, -122.41)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "g1", got[0].ID)
	assert.Equal(t, "g3", got[1].ID)
}

func TestDiscovery_FallsBackToFullListing(t *testing.T) {
	var fallbackHit atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gatherings/nearby", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /gatherings/", func(w http.ResponseWriter, r *http.Request) {
		fallbackHit.Store(true)
		list := gatheringList()
		for i := range list {
			list[i].DistanceKm = nil
		}
		_ = json.NewEncoder(w).Encode(list)
	})
	api, _ := newTestClient(t, mux)
	ds := NewDiscoveryService(api, discardLogger())

	got, err := ds.FindGatherings(t.Context(), 37.77, -122.41)
	require.NoError(t, err)
	assert.True(t, fallbackHit.Load())
	require.NotEmpty(t, got, "fallback must never yield empty purely due to the proximity failure")
	for _, g := range got {
		assert.Nil(t, g.DistanceKm, "fallback results carry no distance annotation")
		assert.False(t, g.IsClaimed)
	}
}

func TestDiscovery_ErrorOnlyWhenBothTiersFail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	api, _ := newTestClient(t, mux)
	ds := NewDiscoveryService(api, discardLogger())

	_, err := ds.FindGatherings(t.Context(), 37.77, -122.41)
	require.Error(t, err)
}

func TestClaimCoordinator_SuccessMarksItemClaimed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /claims/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GatheringID string `json:"gathering_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(models.Claim{ID: "c1", GatheringID: req.GatheringID, Status: models.ClaimStatusClaimed})
	})
	api, _ := newTestClient(t, mux)
	view := NewGatheringView(gatheringList())
	cc := NewClaimCoordinator(api, view)

	outcome, err := cc.Claim(t.Context(), "g1")
	require.NoError(t, err)
	assert.Equal(t, ClaimSuccess, outcome)

	g, ok := view.Item("g1")
	require.True(t, ok)
	assert.True(t, g.IsClaimed, "item is marked, not removed")
	for _, it := range view.Items() {
		assert.NotEqual(t, "g1", it.ID, "renderable items exclude the claimed one")
	}
}

func TestClaimCoordinator_ConflictLeavesViewUntouched(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /claims/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "gathering already claimed"})
	})
	api, _ := newTestClient(t, mux)
	view := NewGatheringView(gatheringList())
	cc := NewClaimCoordinator(api, view)

	outcome, err := cc.Claim(t.Context(), "g1")
	assert.Equal(t, ClaimConflict, outcome)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "g1", conflict.GatheringID)

	g, _ := view.Item("g1")
	assert.False(t, g.IsClaimed)
}

func TestClaimCoordinator_CancelledNavigationIsNoop(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /claims/", func(w http.ResponseWriter, r *http.Request) {
		// the user navigates away while the request is in flight
		cancel()
		<-r.Context().Done()
	})
	api, _ := newTestClient(t, mux)
	view := NewGatheringView(gatheringList())
	cc := NewClaimCoordinator(api, view)

	outcome, err := cc.Claim(ctx, "g1")
	assert.Equal(t, ClaimFailure, outcome)
	require.Error(t, err)

	g, _ := view.Item("g1")
	assert.False(t, g.IsClaimed, "late result must not mutate the abandoned view")
}
