package models

import "time"

// Role is the closed set of account types.
type Role string

const (
	RoleDonor     Role = "donor"
	RoleRecipient Role = "recipient"
	// RoleUnknown marks a session whose role could not be established,
	// e.g. a token response without user_type and a failed profile refetch.
	RoleUnknown Role = "unknown"
)

// Valid reports whether r is one of the registrable roles.
func (r Role) Valid() bool { return r == RoleDonor || r == RoleRecipient }

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// User carries nullable coordinates: both pointers are set or both are nil.
type User struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Role      Role     `json:"user_type"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// HasLocation reports whether the user has an established location.
func (u *User) HasLocation() bool { return u.Latitude != nil && u.Longitude != nil }

// Session is the locally cached credential + profile pair. The server stays
// authoritative on credential validity; no expiry is enforced client-side.
type Session struct {
	Credential string `json:"credential"`
	User       User   `json:"user"`
}

type Gathering struct {
	ID            string    `json:"id"`
	DonorID       string    `json:"user_id"`
	FoodDetails   string    `json:"food_details"`
	AvailableFrom time.Time `json:"available_from"`
	AvailableTo   time.Time `json:"available_to"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	IsClaimed     bool      `json:"is_taken"`
	// DistanceKm is populated only by proximity queries.
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// AvailableAt reports whether t falls inside the availability window.
func (g *Gathering) AvailableAt(t time.Time) bool {
	return !t.Before(g.AvailableFrom) && !t.After(g.AvailableTo)
}

// ClaimStatus values follow the claimed -> collected | cancelled lifecycle.
type ClaimStatus string

const (
	ClaimStatusClaimed   ClaimStatus = "claimed"
	ClaimStatusCollected ClaimStatus = "collected"
	ClaimStatusCancelled ClaimStatus = "cancelled"
)

func (s ClaimStatus) Valid() bool {
	return s == ClaimStatusClaimed || s == ClaimStatusCollected || s == ClaimStatusCancelled
}

type Claim struct {
	ID          string      `json:"id"`
	GatheringID string      `json:"gathering_id"`
	RecipientID string      `json:"recipient_id"`
	ClaimTime   time.Time   `json:"claim_time"`
	Status      ClaimStatus `json:"status"`
}

// GatheringLocation is the event emitted when a gathering is posted or
// reopened; the geoindexer consumes it to maintain the Redis GEO index.
type GatheringLocation struct {
	GatheringID string  `json:"gathering_id"`
	Lat         float64 `json:"latitude"`
	Lon         float64 `json:"longitude"`
	Available   bool    `json:"available"`
}

// ClaimNotice is pushed to the donor when one of their gatherings is claimed.
type ClaimNotice struct {
	GatheringID   string    `json:"gathering_id"`
	FoodDetails   string    `json:"food_details"`
	RecipientName string    `json:"recipient_name"`
	ClaimTime     time.Time `json:"claim_time"`
}
