package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/food-donation/internal/client"
	"github.com/example/food-donation/internal/config"
	"github.com/example/food-donation/internal/dispatch"
	"github.com/example/food-donation/internal/models"
	"github.com/example/food-donation/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.MemoryStore) {
	t.Helper()
	cfg := config.ServerConfig{
		JWTSecret:      "test-secret",
		TokenTTL:       time.Hour,
		NearbyRadiusKm: 10,
		NearbyLimit:    100,
	}
	store := storage.NewMemoryStore()
	logger := slog.New(slog.DiscardHandler)
	wsReg := dispatch.NewWSRegistry(logger)
	srv := New(cfg, store, nil, nil, wsReg, nil, logger)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, store
}

func registerUser(t *testing.T, ts *httptest.Server, name, email string, role models.Role) models.User {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"email":%q,"password":"pw","user_type":%q}`, name, email, role)
	resp, err := http.Post(ts.URL+"/users/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var u models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
	return u
}

func loginUser(t *testing.T, ts *httptest.Server, email string) string {
	t.Helper()
	form := url.Values{"username": {email}, "password": {"pw"}}
	resp, err := http.PostForm(ts.URL+"/users/token", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	return tok.AccessToken
}

func authedRequest(t *testing.T, method, urlStr, token, body string) *http.Response {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, urlStr, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func postGathering(t *testing.T, ts *httptest.Server, token string, lat, lon float64) models.Gathering {
	t.Helper()
	now := time.Now().UTC()
	body := fmt.Sprintf(`{"food_details":"vegetable curry","available_from":%q,"available_to":%q,"latitude":%v,"longitude":%v}`,
		now.Add(-time.Hour).Format(time.RFC3339), now.Add(time.Hour).Format(time.RFC3339), lat, lon)
	resp := authedRequest(t, http.MethodPost, ts.URL+"/gatherings/", token, body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var g models.Gathering
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	return g
}

func TestRegisterRejectsBadRole(t *testing.T) {
	ts, _ := newTestServer(t)
	body := `{"name":"X","email":"x@example.com","password":"pw","user_type":"admin"}`
	resp, err := http.Post(ts.URL+"/users/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTokenRejectsWrongPassword(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "Ana", "ana@example.com", models.RoleRecipient)
	form := url.Values{"username": {"ana@example.com"}, "password": {"nope"}}
	resp, err := http.PostForm(ts.URL+"/users/token", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMeRequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/users/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoleGates(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "Don", "don@example.com", models.RoleDonor)
	registerUser(t, ts, "Rec", "rec@example.com", models.RoleRecipient)
	donorTok := loginUser(t, ts, "don@example.com")
	recTok := loginUser(t, ts, "rec@example.com")

	// donors cannot browse, recipients cannot post
	resp := authedRequest(t, http.MethodGet, ts.URL+"/gatherings/", donorTok, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = authedRequest(t, http.MethodPost, ts.URL+"/gatherings/", recTok, `{"food_details":"x"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = authedRequest(t, http.MethodPost, ts.URL+"/claims/", donorTok, `{"gathering_id":"g"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestNearbyAnnotatesDistanceAndFiltersClaimed(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "Don", "don@example.com", models.RoleDonor)
	registerUser(t, ts, "Rec", "rec@example.com", models.RoleRecipient)
	donorTok := loginUser(t, ts, "don@example.com")
	recTok := loginUser(t, ts, "rec@example.com")

	near := postGathering(t, ts, donorTok, 37.78, -122.42)
	postGathering(t, ts, donorTok, 48.85, 2.35) // far away, outside radius
	claimedG := postGathering(t, ts, donorTok, 37.77, -122.41)

	resp := authedRequest(t, http.MethodPost, ts.URL+"/claims/", recTok, fmt.Sprintf(`{"gathering_id":%q}`, claimedG.ID))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = authedRequest(t, http.MethodGet, ts.URL+"/gatherings/nearby?latitude=37.77&longitude=-122.41", recTok, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got []models.Gathering
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, near.ID, got[0].ID)
	require.NotNil(t, got[0].DistanceKm)
	assert.Less(t, *got[0].DistanceKm, 10.0)
}

func TestClaimRace_ExactlyOneWinner(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "Don", "don@example.com", models.RoleDonor)
	donorTok := loginUser(t, ts, "don@example.com")
	g := postGathering(t, ts, donorTok, 37.77, -122.41)

	const racers = 8
	tokens := make([]string, racers)
	for i := 0; i < racers; i++ {
		email := fmt.Sprintf("r%d@example.com", i)
		registerUser(t, ts, "R", email, models.RoleRecipient)
		tokens[i] = loginUser(t, ts, email)
	}

	var wg sync.WaitGroup
	statuses := make(chan int, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			resp := authedRequest(t, http.MethodPost, ts.URL+"/claims/", tok, fmt.Sprintf(`{"gathering_id":%q}`, g.ID))
			resp.Body.Close()
			statuses <- resp.StatusCode
		}(tokens[i])
	}
	wg.Wait()
	close(statuses)

	var created, conflicts int
	for code := range statuses {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, created, "exactly one claim may succeed")
	assert.Equal(t, racers-1, conflicts)
}

func TestClaimUnknownGathering(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "Rec", "rec@example.com", models.RoleRecipient)
	tok := loginUser(t, ts, "rec@example.com")
	resp := authedRequest(t, http.MethodPost, ts.URL+"/claims/", tok, `{"gathering_id":"missing"}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelClaimReopensForDiscovery(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "Don", "don@example.com", models.RoleDonor)
	registerUser(t, ts, "Rec", "rec@example.com", models.RoleRecipient)
	donorTok := loginUser(t, ts, "don@example.com")
	recTok := loginUser(t, ts, "rec@example.com")
	g := postGathering(t, ts, donorTok, 37.77, -122.41)

	resp := authedRequest(t, http.MethodPost, ts.URL+"/claims/", recTok, fmt.Sprintf(`{"gathering_id":%q}`, g.ID))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var c models.Claim
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&c))
	resp.Body.Close()

	resp = authedRequest(t, http.MethodPut, ts.URL+"/claims/"+c.ID+"/status?status=cancelled", recTok, "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = authedRequest(t, http.MethodGet, ts.URL+"/gatherings/nearby?latitude=37.77&longitude=-122.41", recTok, "")
	defer resp.Body.Close()
	var got []models.Gathering
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1, "cancelled claim must make the gathering discoverable again")
}

func TestClaimsForMyGatherings(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "Don", "don@example.com", models.RoleDonor)
	registerUser(t, ts, "Other", "other@example.com", models.RoleDonor)
	registerUser(t, ts, "Rec", "rec@example.com", models.RoleRecipient)
	donorTok := loginUser(t, ts, "don@example.com")
	otherTok := loginUser(t, ts, "other@example.com")
	recTok := loginUser(t, ts, "rec@example.com")

	mine := postGathering(t, ts, donorTok, 37.77, -122.41)
	theirs := postGathering(t, ts, otherTok, 37.78, -122.42)

	for _, g := range []models.Gathering{mine, theirs} {
		resp := authedRequest(t, http.MethodPost, ts.URL+"/claims/", recTok, fmt.Sprintf(`{"gathering_id":%q}`, g.ID))
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := authedRequest(t, http.MethodGet, ts.URL+"/claims/for-my-gatherings", donorTok, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claims []models.Claim
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&claims))
	require.Len(t, claims, 1, "only claims against the donor's own gatherings")
	assert.Equal(t, mine.ID, claims[0].GatheringID)

	resp = authedRequest(t, http.MethodGet, ts.URL+"/claims/for-my-gatherings", recTok, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// TestRecipientWorkflow drives the whole flow through the client core:
// register, login, set location, discover, claim, and a losing second claim.
func TestRecipientWorkflow(t *testing.T) {
	ts, _ := newTestServer(t)
	registerUser(t, ts, "Don", "don@example.com", models.RoleDonor)
	donorTok := loginUser(t, ts, "don@example.com")
	g1 := postGathering(t, ts, donorTok, 37.78, -122.42)

	newSession := func() (*client.AuthManager, *client.APIClient, client.SessionStore) {
		store := client.NewMemoryStore()
		api := client.NewAPIClient(ts.URL, func() string {
			if s, ok := store.Load(); ok {
				return s.Credential
			}
			return ""
		})
		return client.NewAuthManager(api, store), api, store
	}

	am, api, store := newSession()
	_, err := am.Register(t.Context(), client.RegisterProfile{
		Name: "Ana", Email: "ana@example.com", Password: "pw", Role: models.RoleRecipient,
	})
	require.NoError(t, err)
	sess, err := am.Login(t.Context(), "ana@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, models.RoleRecipient, sess.User.Role)

	require.True(t, client.CanEnter(sess, []models.Role{models.RoleRecipient}).Allowed)

	lm := client.NewLocationManager(api, store)
	require.NoError(t, lm.SetLocation(37.77, -122.41))
	loc, ok := lm.Location(t.Context())
	require.True(t, ok)

	ds := client.NewDiscoveryService(api, slog.New(slog.DiscardHandler))
	found, err := ds.FindGatherings(t.Context(), loc.Lat, loc.Lon)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, g1.ID, found[0].ID)

	view := client.NewGatheringView(found)
	cc := client.NewClaimCoordinator(api, view)
	outcome, err := cc.Claim(t.Context(), g1.ID)
	require.NoError(t, err)
	require.Equal(t, client.ClaimSuccess, outcome)
	item, _ := view.Item(g1.ID)
	require.True(t, item.IsClaimed)

	// a second recipient races in and loses
	am2, api2, _ := newSession()
	_, err = am2.Register(t.Context(), client.RegisterProfile{
		Name: "Ben", Email: "ben@example.com", Password: "pw", Role: models.RoleRecipient,
	})
	require.NoError(t, err)
	_, err = am2.Login(t.Context(), "ben@example.com", "pw")
	require.NoError(t, err)

	view2 := client.NewGatheringView(found)
	cc2 := client.NewClaimCoordinator(api2, view2)
	outcome2, err := cc2.Claim(t.Context(), g1.ID)
	require.Equal(t, client.ClaimConflict, outcome2)
	var conflict *client.ConflictError
	require.ErrorAs(t, err, &conflict)
}
