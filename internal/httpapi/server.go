package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/food-donation/internal/config"
	"github.com/example/food-donation/internal/dispatch"
	"github.com/example/food-donation/internal/geo"
	"github.com/example/food-donation/internal/ingest"
	"github.com/example/food-donation/internal/observability"
	"github.com/example/food-donation/internal/storage"
)

type Server struct {
	cfg    config.ServerConfig
	store  storage.Store
	geoIdx geo.Geo   // primary index, usually Redis; may be nil
	memIdx *geo.Index // always present, fallback and single-node mode
	kafka  *ingest.KafkaProducer
	notify dispatch.Notifier
	wsReg  *dispatch.WSRegistry
	logger *slog.Logger
	mux    *mux.Router
}

// New wires a Server from explicit dependencies; primary may be nil.
func New(cfg config.ServerConfig, store storage.Store, primary geo.Geo, kafka *ingest.KafkaProducer, wsReg *dispatch.WSRegistry, notify dispatch.Notifier, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		geoIdx: primary,
		memIdx: geo.NewIndex(),
		kafka:  kafka,
		notify: notify,
		wsReg:  wsReg,
		logger: logger,
		mux:    mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

// NewFromConfig builds the production wiring: Redis geo and Kafka when
// configured, memory fallbacks otherwise.
func NewFromConfig(cfg config.ServerConfig, store storage.Store, logger *slog.Logger) *Server {
	var primary geo.Geo
	if cfg.RedisAddr != "" {
		primary = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	}
	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	wsReg := dispatch.NewWSRegistry(logger)
	notify := dispatch.NewPushNotifier(wsReg, cfg.DonorWebhookURL)
	return New(cfg, store, primary, kp, wsReg, notify, logger)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/users/register", s.handleRegister).Methods("POST")
	s.mux.HandleFunc("/users/token", s.handleToken).Methods("POST")
	s.mux.HandleFunc("/users/me", s.handleMe).Methods("GET")

	s.mux.HandleFunc("/gatherings/", s.handleCreateGathering).Methods("POST")
	s.mux.HandleFunc("/gatherings/", s.handleListGatherings).Methods("GET")
	s.mux.HandleFunc("/gatherings/nearby", s.handleNearbyGatherings).Methods("GET")
	s.mux.HandleFunc("/gatherings/my-donations", s.handleMyDonations).Methods("GET")
	s.mux.HandleFunc("/gatherings/{id}", s.handleGatheringDetail).Methods("GET")

	s.mux.HandleFunc("/claims/", s.handleCreateClaim).Methods("POST")
	s.mux.HandleFunc("/claims/my-claims", s.handleMyClaims).Methods("GET")
	s.mux.HandleFunc("/claims/for-my-gatherings", s.handleClaimsForMyGatherings).Methods("GET")
	s.mux.HandleFunc("/claims/{id}/status", s.handleUpdateClaimStatus).Methods("PUT")

	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// geoUpsert keeps both indexes in sync; the Redis write is best effort, the
// in-memory one cannot fail.
func (s *Server) geoUpsert(ctx context.Context, id string, lat, lon float64) {
	_ = s.memIdx.Upsert(ctx, id, lat, lon)
	if s.geoIdx != nil {
		if err := s.geoIdx.Upsert(ctx, id, lat, lon); err != nil {
			s.logger.Warn("redis geo upsert failed", "gathering_id", id, "error", err)
		}
	}
}

func (s *Server) geoRemove(ctx context.Context, id string) {
	_ = s.memIdx.Remove(ctx, id)
	if s.geoIdx != nil {
		if err := s.geoIdx.Remove(ctx, id); err != nil {
			s.logger.Warn("redis geo remove failed", "gathering_id", id, "error", err)
		}
	}
}

// geoNearby queries the primary index and falls back to the in-memory scan on
// error, so a Redis outage degrades rather than failing the request.
func (s *Server) geoNearby(ctx context.Context, lat, lon, radiusKm float64, limit int) []geo.Hit {
	if s.geoIdx != nil {
		hits, err := s.geoIdx.Nearby(ctx, lat, lon, radiusKm, limit)
		if err == nil {
			return hits
		}
		observability.GeoFallbacks.Inc()
		s.logger.Warn("redis geo query failed, using memory index", "error", err)
	}
	hits, _ := s.memIdx.Nearby(ctx, lat, lon, radiusKm, limit)
	return hits
}
