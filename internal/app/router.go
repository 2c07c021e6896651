package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planora/planora/internal/apperrors"
	"github.com/planora/planora/internal/audit"
	"github.com/planora/planora/internal/auth"
	"github.com/planora/planora/internal/config"
	"github.com/planora/planora/internal/events"
	"github.com/planora/planora/internal/gateway"
	"github.com/planora/planora/internal/invites"
	"github.com/planora/planora/internal/notifications"
	"github.com/planora/planora/internal/notify"
	"github.com/planora/planora/internal/stakeholders"
	"github.com/planora/planora/internal/users"
)

// Services bundles the wired service layer for the router.
type Services struct {
	Users         *users.Service
	Stakeholders  *stakeholders.Service
	Invites       *invites.Service
	Events        *events.Service
	Notifications *notifications.Service
	Gateway       *gateway.Gateway
	Auditor       *audit.Writer
	Notifier      *notify.Client
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config, svc *Services) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	// Middleware stack
	r.Use(middleware.RealIP)         // Set RemoteAddr to real IP
	r.Use(RequestIDMiddleware)       // Add request ID to context
	r.Use(LoggingMiddleware)         // Structured request logging
	r.Use(RecoveryMiddleware)        // Recover from panics
	r.Use(cors.Handler(cors.Options{ // CORS (pinned dep)
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret)) // Validate session cookies

	authHandlers := auth.NewHandlers(svc.Users, svc.Gateway, svc.Auditor, cfg.JWTSecret, cfg.SessionDays, isProduction)

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	// API routes - Authentication
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))

		r.Post("/signup", authHandlers.HandleSignup)
		r.With(LoginRateLimitMiddleware(cfg.LoginRateLimitRPM)).Post("/login", authHandlers.HandleLogin)
		r.With(auth.RequireAuth).Post("/logout", authHandlers.HandleLogout)
		r.With(auth.RequireAuth).Get("/me", authHandlers.HandleMe)
	})

	// API routes - User directory (require authentication)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireAuth)

		r.Get("/", users.HandleList(svc.Users, svc.Gateway))
		r.Patch("/me", users.HandleUpdateProfile(svc.Users, svc.Gateway))
		r.Get("/{user_id}", users.HandleGet(svc.Users, svc.Gateway))
		r.Put("/{user_id}/role", users.HandleUpdateRole(svc.Users, svc.Gateway, svc.Auditor))
		r.Put("/{user_id}/active", users.HandleSetActive(svc.Users, svc.Gateway, svc.Auditor))
		r.Delete("/{user_id}", users.HandleDelete(svc.Users, svc.Gateway, svc.Auditor))
	})

	// API routes - Stakeholders (require authentication)
	r.Route("/api/v1/stakeholders", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireAuth)

		r.Post("/", stakeholders.HandleCreate(svc.Stakeholders, svc.Gateway, svc.Auditor))
		r.Get("/", stakeholders.HandleList(svc.Stakeholders))
		r.Get("/{stakeholder_id}", stakeholders.HandleGet(svc.Stakeholders))
		r.Put("/{stakeholder_id}", stakeholders.HandleUpdate(svc.Stakeholders, svc.Gateway, svc.Auditor))
		r.Delete("/{stakeholder_id}", stakeholders.HandleDelete(svc.Stakeholders, svc.Gateway, svc.Auditor))
		r.Post("/{stakeholder_id}/invite", invites.HandleCreate(svc.Invites, svc.Stakeholders, svc.Gateway, svc.Auditor, svc.Notifier, cfg.BaseURL))
	})

	// API routes - Invitations. Validation is public: the recipient holds a
	// token, not a session. Redemption requires the freshly created session.
	r.Route("/api/v1/invites", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/validate", invites.HandleValidate(svc.Invites))
		r.With(CSRFMiddleware(isProduction), auth.RequireAuth).Post("/redeem", invites.HandleRedeem(svc.Invites, svc.Auditor))
	})

	// API routes - Events (require authentication)
	r.Route("/api/v1/events", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireAuth)

		r.Post("/", events.HandleCreate(svc.Events, svc.Gateway, svc.Auditor))
		r.Get("/", events.HandleList(svc.Events))
		r.Get("/{event_id}", events.HandleGet(svc.Events))
		r.Put("/{event_id}", events.HandleUpdate(svc.Events, svc.Gateway, svc.Auditor, svc.Notifications))
		r.Delete("/{event_id}", events.HandleDelete(svc.Events, svc.Gateway, svc.Auditor, svc.Notifications))

		r.Get("/{event_id}/stakeholders", events.HandleListStakeholders(svc.Events))
		r.Post("/{event_id}/stakeholders", events.HandleAddStakeholder(svc.Events, svc.Gateway, svc.Auditor, svc.Notifications))
		r.Delete("/{event_id}/stakeholders/{stakeholder_id}", events.HandleRemoveStakeholder(svc.Events, svc.Gateway, svc.Auditor, svc.Notifications))
	})

	// API routes - Notifications (require authentication)
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(auth.RequireAuth)

		r.Get("/", notifications.HandleList(svc.Notifications))
		r.Post("/{notification_id}/read", notifications.HandleMarkRead(svc.Notifications))
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
// Returns 200 OK if service is ready to accept traffic, 503 if not
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}
