package client

import (
	"context"

	"github.com/example/food-donation/internal/models"
)

// AuthManager performs login/registration against the identity endpoints and
// keeps the SessionStore up to date.
type AuthManager struct {
	api   *APIClient
	store SessionStore
}

func NewAuthManager(api *APIClient, store SessionStore) *AuthManager {
	return &AuthManager{api: api, store: store}
}

// Login exchanges credentials for a bearer token and always refetches the
// profile, so the cached role comes from the authoritative /users/me rather
// than the token response's optional user_type. Only when the refetch fails
// does the provisional role (or unknown) stick until the next profile load.
func (a *AuthManager) Login(ctx context.Context, email, password string) (*models.Session, error) {
	tok, err := a.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	role := tok.UserType
	if role == "" {
		role = models.RoleUnknown
	}
	provisional := models.User{Email: email, Role: role}
	a.store.Save(tok.AccessToken, provisional)

	if u, err := a.api.Profile(ctx); err == nil {
		a.store.Save(tok.AccessToken, *u)
		return &models.Session{Credential: tok.AccessToken, User: *u}, nil
	}
	return &models.Session{Credential: tok.AccessToken, User: provisional}, nil
}

// Register creates an account. Location stays absent until the user picks one
// on the map; no sentinel coordinate is ever sent.
func (a *AuthManager) Register(ctx context.Context, profile RegisterProfile) (*models.User, error) {
	if profile.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if profile.Email == "" {
		return nil, &ValidationError{Field: "email", Reason: "required"}
	}
	if profile.Password == "" {
		return nil, &ValidationError{Field: "password", Reason: "required"}
	}
	if !profile.Role.Valid() {
		return nil, &ValidationError{Field: "user_type", Reason: "must be donor or recipient"}
	}
	if (profile.Latitude == nil) != (profile.Longitude == nil) {
		return nil, &ValidationError{Field: "location", Reason: "latitude and longitude must be provided together"}
	}
	return a.api.Register(ctx, profile)
}

// Logout clears the credential and cached profile together.
func (a *AuthManager) Logout() { a.store.Clear() }
