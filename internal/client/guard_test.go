package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/food-donation/internal/models"
)

func sessionWithRole(role models.Role) *models.Session {
	return &models.Session{Credential: "tok", User: models.User{ID: "u1", Role: role}}
}

func TestCanEnter_NoSessionRedirectsToLogin(t *testing.T) {
	for _, roles := range [][]models.Role{nil, {}, {models.RoleRecipient}, {models.RoleDonor, models.RoleRecipient}} {
		d := CanEnter(nil, roles)
		assert.False(t, d.Allowed)
		assert.Equal(t, PathLogin, d.RedirectTo, "roles=%v", roles)
	}
}

func TestCanEnter_RoleRestriction(t *testing.T) {
	tests := []struct {
		name     string
		role     models.Role
		required []models.Role
		allowed  bool
	}{
		{"recipient allowed on recipient page", models.RoleRecipient, []models.Role{models.RoleRecipient}, true},
		{"donor rejected on recipient page", models.RoleDonor, []models.Role{models.RoleRecipient}, false},
		{"unknown rejected on recipient page", models.RoleUnknown, []models.Role{models.RoleRecipient}, false},
		{"donor allowed on donor page", models.RoleDonor, []models.Role{models.RoleDonor}, true},
		{"either role allowed on shared page", models.RoleDonor, []models.Role{models.RoleDonor, models.RoleRecipient}, true},
		{"no restriction allows any role", models.RoleUnknown, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanEnter(sessionWithRole(tt.role), tt.required)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, PathMap, d.RedirectTo)
			}
		})
	}
}

func TestCanEnter_AfterLogout(t *testing.T) {
	store := NewMemoryStore()
	store.Save("tok", models.User{ID: "u1", Role: models.RoleRecipient})
	store.Clear()

	s, ok := store.Load()
	assert.False(t, ok)
	for _, roles := range [][]models.Role{nil, {models.RoleDonor}, {models.RoleRecipient}} {
		d := CanEnter(s, roles)
		assert.Equal(t, PathLogin, d.RedirectTo)
	}
}
