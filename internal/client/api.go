package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/food-donation/internal/models"
)

// APIClient talks to the backend. A bearer header is attached whenever the
// credential source yields one; its absence does not block the request.
type APIClient struct {
	BaseURL    string
	HTTP       *http.Client
	Credential func() string
}

func NewAPIClient(baseURL string, credential func() string) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTP:       &http.Client{},
		Credential: credential,
	}
}

func (c *APIClient) do(ctx context.Context, method, path string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Credential != nil {
		if tok := c.Credential(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

// errorDetail extracts the server's "detail" message, falling back to the
// HTTP status text.
func errorDetail(resp *http.Response) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return http.StatusText(resp.StatusCode)
}

func decodeInto(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &NetworkError{Op: "decode response", Err: err}
	}
	return nil
}

// TokenResponse mirrors the identity endpoint's payload; UserType is not
// guaranteed to be present.
type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	UserType    models.Role `json:"user_type"`
}

func (c *APIClient) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	resp, err := c.do(ctx, http.MethodPost, "/users/token", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &AuthError{Detail: errorDetail(resp)}
	}
	var tok TokenResponse
	if err := decodeInto(resp, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// RegisterProfile is the registration payload; Latitude/Longitude stay nil
// until the user has picked a location.
type RegisterProfile struct {
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	Role      models.Role `json:"user_type"`
	Latitude  *float64    `json:"latitude"`
	Longitude *float64    `json:"longitude"`
}

func (c *APIClient) Register(ctx context.Context, profile RegisterProfile) (*models.User, error) {
	b, _ := json.Marshal(profile)
	resp, err := c.do(ctx, http.MethodPost, "/users/register", "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		defer resp.Body.Close()
		return nil, &AuthError{Detail: errorDetail(resp)}
	}
	var u models.User
	if err := decodeInto(resp, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) Profile(ctx context.Context) (*models.User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/me", "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &AuthError{Detail: errorDetail(resp)}
	}
	var u models.User
	if err := decodeInto(resp, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) NearbyGatherings(ctx context.Context, lat, lon float64) ([]models.Gathering, error) {
	path := fmt.Sprintf("/gatherings/nearby?latitude=%s&longitude=%s",
		strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lon, 'f', -1, 64))
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &NetworkError{Op: "nearby gatherings", Err: fmt.Errorf("status %d: %s", resp.StatusCode, errorDetail(resp))}
	}
	var out []models.Gathering
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) AllGatherings(ctx context.Context) ([]models.Gathering, error) {
	resp, err := c.do(ctx, http.MethodGet, "/gatherings/", "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &NetworkError{Op: "list gatherings", Err: fmt.Errorf("status %d: %s", resp.StatusCode, errorDetail(resp))}
	}
	var out []models.Gathering
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GatheringDraft is the donor-side posting payload.
type GatheringDraft struct {
	FoodDetails   string    `json:"food_details"`
	AvailableFrom time.Time `json:"available_from"`
	AvailableTo   time.Time `json:"available_to"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
}

func (c *APIClient) CreateGathering(ctx context.Context, draft GatheringDraft) (*models.Gathering, error) {
	b, _ := json.Marshal(draft)
	resp, err := c.do(ctx, http.MethodPost, "/gatherings/", "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		defer resp.Body.Close()
		return nil, &NetworkError{Op: "post gathering", Err: fmt.Errorf("status %d: %s", resp.StatusCode, errorDetail(resp))}
	}
	var g models.Gathering
	if err := decodeInto(resp, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *APIClient) MyClaims(ctx context.Context) ([]models.Claim, error) {
	resp, err := c.do(ctx, http.MethodGet, "/claims/my-claims", "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &NetworkError{Op: "my claims", Err: fmt.Errorf("status %d: %s", resp.StatusCode, errorDetail(resp))}
	}
	var out []models.Claim
	if err := decodeInto(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) CreateClaim(ctx context.Context, gatheringID string) (*models.Claim, error) {
	b, _ := json.Marshal(map[string]string{"gathering_id": gatheringID})
	resp, err := c.do(ctx, http.MethodPost, "/claims/", "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusConflict {
		resp.Body.Close()
		return nil, &ConflictError{GatheringID: gatheringID}
	}
	if resp.StatusCode != http.StatusCreated {
		defer resp.Body.Close()
		return nil, &NetworkError{Op: "claim", Err: fmt.Errorf("status %d: %s", resp.StatusCode, errorDetail(resp))}
	}
	var claim models.Claim
	if err := decodeInto(resp, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}
