package client

import "github.com/example/food-donation/internal/models"

// Navigation targets the guard can redirect to.
const (
	PathLogin  = "/login"
	PathMap    = "/map"
	PathNearby = "/nearby-gatherings"
)

// Decision is the route guard's verdict.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

func Allow() Decision { return Decision{Allowed: true} }

func Redirect(path string) Decision { return Decision{RedirectTo: path} }

// CanEnter is the pure, stateless guard: no session redirects to login; a
// role restriction the session's user does not satisfy redirects to the
// default authenticated page. It must be re-evaluated on every navigation,
// since the session can change between checks.
func CanEnter(session *models.Session, requiredRoles []models.Role) Decision {
	if session == nil {
		return Redirect(PathLogin)
	}
	if len(requiredRoles) == 0 {
		return Allow()
	}
	for _, want := range requiredRoles {
		switch session.User.Role {
		case want:
			return Allow()
		case models.RoleDonor, models.RoleRecipient, models.RoleUnknown:
			// no match for this entry; keep scanning
		}
	}
	return Redirect(PathMap)
}
