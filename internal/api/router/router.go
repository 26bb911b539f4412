package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/pro-marketplace/internal/availability"
	"github.com/wolfman30/pro-marketplace/internal/bookings"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	httpmiddleware "github.com/wolfman30/pro-marketplace/internal/http/middleware"
	"github.com/wolfman30/pro-marketplace/internal/http/respond"
	"github.com/wolfman30/pro-marketplace/internal/ledger"
	"github.com/wolfman30/pro-marketplace/internal/pricing"
	"github.com/wolfman30/pro-marketplace/internal/webhooks"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Config holds the handlers and HTTP settings the router mounts.
type Config struct {
	Logger             *logging.Logger
	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	MetricsHandler     http.Handler

	Availability *availability.Handler
	Bookings     *bookings.Handler
	Ledger       *ledger.Handler
	Pricing      *pricing.Handler
	Webhooks     *webhooks.Handler
}

// New creates the chi router. Gateway webhooks are authenticated by
// signature; everything else requires a bearer token.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhooks != nil {
			cfg.Webhooks.RegisterPublic(public)
		}
	})

	adminOnly := httpmiddleware.RequireRole(logger, domain.RoleAdmin)
	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.Authenticate(cfg.JWTSecret))

		if cfg.Availability != nil {
			cfg.Availability.Register(authed)
		}
		if cfg.Bookings != nil {
			cfg.Bookings.Register(authed)
		}
		if cfg.Webhooks != nil {
			cfg.Webhooks.RegisterAdmin(authed, adminOnly)
		}
		if cfg.Ledger != nil {
			cfg.Ledger.Register(authed, adminOnly)
		}
		if cfg.Pricing != nil {
			authed.Route("/admin/pricing", func(admin chi.Router) {
				admin.Use(adminOnly)
				admin.Get("/", cfg.Pricing.Get)
				admin.Put("/", cfg.Pricing.Put)
			})
		}
	})

	return r
}
