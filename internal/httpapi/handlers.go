package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/food-donation/internal/auth"
	"github.com/example/food-donation/internal/models"
	"github.com/example/food-donation/internal/observability"
	"github.com/example/food-donation/internal/storage"
)

// Error payloads use a "detail" field; clients surface it directly.
func respondError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type registerRequest struct {
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	Role      models.Role `json:"user_type"`
	Latitude  *float64    `json:"latitude"`
	Longitude *float64    `json:"longitude"`
}

func validCoord(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	if !req.Role.Valid() {
		respondError(w, http.StatusBadRequest, `user_type must be either "donor" or "recipient"`)
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		respondError(w, http.StatusBadRequest, "latitude and longitude must be provided together")
		return
	}
	if req.Latitude != nil && !validCoord(*req.Latitude, *req.Longitude) {
		respondError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	u := &models.User{
		Name:      req.Name,
		Email:     req.Email,
		Role:      req.Role,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
	if err := s.store.CreateUser(r.Context(), u, hash); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("create user failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	email := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	u, hash, err := s.store.UserByEmail(r.Context(), email)
	if err != nil || !auth.CheckPassword(hash, password) {
		respondError(w, http.StatusUnauthorized, "incorrect email or password")
		return
	}
	token, err := auth.GenerateToken(u.ID, []byte(s.cfg.JWTSecret), s.cfg.TokenTTL)
	if err != nil {
		s.logger.Error("token generation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user_type":    u.Role,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	respondJSON(w, http.StatusOK, u)
}

type gatheringRequest struct {
	FoodDetails   string    `json:"food_details"`
	AvailableFrom time.Time `json:"available_from"`
	AvailableTo   time.Time `json:"available_to"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
}

func (s *Server) handleCreateGathering(w http.ResponseWriter, r *http.Request) {
	u, ok := s.requireRole(w, r, models.RoleDonor, "Only donors can create gatherings")
	if !ok {
		return
	}
	var req gatheringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FoodDetails == "" {
		respondError(w, http.StatusBadRequest, "food_details is required")
		return
	}
	if !req.AvailableFrom.Before(req.AvailableTo) {
		respondError(w, http.StatusBadRequest, "available_from must precede available_to")
		return
	}
	if !validCoord(req.Latitude, req.Longitude) {
		respondError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	g := &models.Gathering{
		DonorID:       u.ID,
		FoodDetails:   req.FoodDetails,
		AvailableFrom: req.AvailableFrom,
		AvailableTo:   req.AvailableTo,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
	}
	if err := s.store.CreateGathering(r.Context(), g); err != nil {
		s.logger.Error("create gathering failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.geoUpsert(r.Context(), g.ID, g.Latitude, g.Longitude)
	if s.kafka != nil {
		loc := models.GatheringLocation{GatheringID: g.ID, Lat: g.Latitude, Lon: g.Longitude, Available: true}
		if err := s.kafka.PublishLocation(loc); err != nil {
			s.logger.Warn("kafka publish failed", "gathering_id", g.ID, "error", err)
		}
	}
	observability.GatheringsPosted.Inc()
	respondJSON(w, http.StatusCreated, g)
}

func (s *Server) handleListGatherings(w http.ResponseWriter, r *http.Request) {
	_, ok := s.requireRole(w, r, models.RoleRecipient, "Only recipients can view available gatherings")
	if !ok {
		return
	}
	list, err := s.store.AvailableGatherings(r.Context(), time.Now(), s.cfg.NearbyLimit)
	if err != nil {
		s.logger.Error("list gatherings failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleNearbyGatherings(w http.ResponseWriter, r *http.Request) {
	_, ok := s.requireRole(w, r, models.RoleRecipient, "Only recipients can view nearby gatherings")
	if !ok {
		return
	}
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("latitude"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("longitude"), 64)
	if latErr != nil || lonErr != nil || !validCoord(lat, lon) {
		respondError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	radius := s.cfg.NearbyRadiusKm
	if v := q.Get("max_distance"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			respondError(w, http.StatusBadRequest, "invalid max_distance")
			return
		}
		radius = f
	}

	hits := s.geoNearby(r.Context(), lat, lon, radius, s.cfg.NearbyLimit)
	ids := make([]string, 0, len(hits))
	dist := make(map[string]float64, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
		dist[h.ID] = h.DistanceKm
	}
	gs, err := s.store.GatheringsByIDs(r.Context(), ids)
	if err != nil {
		s.logger.Error("nearby join failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	byID := make(map[string]models.Gathering, len(gs))
	for _, g := range gs {
		byID[g.ID] = g
	}
	now := time.Now()
	out := make([]models.Gathering, 0, len(hits))
	// preserve the index's distance-ascending order
	for _, h := range hits {
		g, ok := byID[h.ID]
		if !ok || g.IsClaimed || !g.AvailableAt(now) {
			continue
		}
		d := dist[h.ID]
		g.DistanceKm = &d
		out = append(out, g)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleMyDonations(w http.ResponseWriter, r *http.Request) {
	u, ok := s.requireRole(w, r, models.RoleDonor, "Only donors can view their donations")
	if !ok {
		return
	}
	list, err := s.store.GatheringsByDonor(r.Context(), u.ID)
	if err != nil {
		s.logger.Error("my-donations failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGatheringDetail(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	id := mux.Vars(r)["id"]
	g, err := s.store.Gathering(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "gathering not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Donors see only their own; recipients see claimed ones only if they
	// claimed them.
	if u.Role == models.RoleDonor && g.DonorID != u.ID {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	if u.Role == models.RoleRecipient && g.IsClaimed {
		claims, err := s.store.ClaimsByRecipient(r.Context(), u.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		mine := false
		for _, c := range claims {
			if c.GatheringID == g.ID && c.Status != models.ClaimStatusCancelled {
				mine = true
				break
			}
		}
		if !mine {
			respondError(w, http.StatusForbidden, "this gathering is no longer available")
			return
		}
	}
	respondJSON(w, http.StatusOK, g)
}

type claimRequest struct {
	GatheringID string `json:"gathering_id"`
}

func (s *Server) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	u, ok := s.requireRole(w, r, models.RoleRecipient, "Only recipients can claim gatherings")
	if !ok {
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GatheringID == "" {
		respondError(w, http.StatusBadRequest, "gathering_id is required")
		return
	}
	claim, err := s.store.ClaimGathering(r.Context(), req.GatheringID, u.ID, time.Now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "gathering not found")
		return
	case errors.Is(err, storage.ErrAlreadyClaimed):
		observability.ClaimConflicts.Inc()
		respondError(w, http.StatusConflict, "gathering already claimed")
		return
	case err != nil:
		s.logger.Error("claim failed", "gathering_id", req.GatheringID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	observability.ClaimsTotal.Inc()
	s.geoRemove(r.Context(), req.GatheringID)
	if s.kafka != nil {
		loc := models.GatheringLocation{GatheringID: req.GatheringID, Available: false}
		if err := s.kafka.PublishLocation(loc); err != nil {
			s.logger.Warn("kafka publish failed", "gathering_id", req.GatheringID, "error", err)
		}
	}

	if g, err := s.store.Gathering(r.Context(), req.GatheringID); err == nil && s.notify != nil {
		notice := models.ClaimNotice{
			GatheringID:   g.ID,
			FoodDetails:   g.FoodDetails,
			RecipientName: u.Name,
			ClaimTime:     claim.ClaimTime,
		}
		if err := s.notify.Notify(g.DonorID, notice); err != nil {
			s.logger.Debug("donor notification skipped", "donor_id", g.DonorID, "error", err)
		}
	}
	respondJSON(w, http.StatusCreated, claim)
}

func (s *Server) handleMyClaims(w http.ResponseWriter, r *http.Request) {
	u, ok := s.requireRole(w, r, models.RoleRecipient, "Only recipients can view their claims")
	if !ok {
		return
	}
	claims, err := s.store.ClaimsByRecipient(r.Context(), u.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, claims)
}

// handleClaimsForMyGatherings lists every claim made against the donor's own
// gatherings.
func (s *Server) handleClaimsForMyGatherings(w http.ResponseWriter, r *http.Request) {
	u, ok := s.requireRole(w, r, models.RoleDonor, "Only donors can view claims for their gatherings")
	if !ok {
		return
	}
	gatherings, err := s.store.GatheringsByDonor(r.Context(), u.ID)
	if err != nil {
		s.logger.Error("for-my-gatherings failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	ids := make([]string, 0, len(gatherings))
	for _, g := range gatherings {
		ids = append(ids, g.ID)
	}
	claims, err := s.store.ClaimsByGatheringIDs(r.Context(), ids)
	if err != nil {
		s.logger.Error("for-my-gatherings failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, claims)
}

func (s *Server) handleUpdateClaimStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	status := models.ClaimStatus(r.URL.Query().Get("status"))
	if !status.Valid() {
		respondError(w, http.StatusBadRequest, "status must be 'claimed', 'collected' or 'cancelled'")
		return
	}
	id := mux.Vars(r)["id"]
	claim, err := s.store.Claim(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "claim not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	g, err := s.store.Gathering(r.Context(), claim.GatheringID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	authorized := (u.Role == models.RoleRecipient && claim.RecipientID == u.ID) ||
		(u.Role == models.RoleDonor && g.DonorID == u.ID)
	if !authorized {
		respondError(w, http.StatusForbidden, "not authorized to update this claim")
		return
	}
	reopening := status == models.ClaimStatusCancelled && claim.Status != models.ClaimStatusCancelled
	updated, err := s.store.UpdateClaimStatus(r.Context(), id, status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if reopening {
		s.geoUpsert(r.Context(), g.ID, g.Latitude, g.Longitude)
		if s.kafka != nil {
			loc := models.GatheringLocation{GatheringID: g.ID, Lat: g.Latitude, Lon: g.Longitude, Available: true}
			if err := s.kafka.PublishLocation(loc); err != nil {
				s.logger.Warn("kafka publish failed", "gathering_id", g.ID, "error", err)
			}
		}
	}
	respondJSON(w, http.StatusOK, updated)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		respondError(w, http.StatusBadRequest, "upgrade failed")
		return
	}
	s.wsReg.Add(id, conn)
	// drain control frames; drop the session once the peer goes away
	go func() {
		defer s.wsReg.Remove(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
