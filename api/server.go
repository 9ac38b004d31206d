package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/federated"
	"github.com/goliatone/go-identity/metrics"
	"github.com/google/uuid"
)

const (
	DefaultSessionCookie = "identity_session"
	DefaultStateCookie   = "identity_oauth_state"
)

// Sessions is the session store used by the federated routes
type Sessions interface {
	identity.SessionStore
	Start(ctx context.Context, identityID uuid.UUID) (*identity.Session, error)
	TTL() time.Duration
}

// Server exposes the identity services over HTTP
type Server struct {
	services      *identity.Services
	sessions      Sessions
	flow          *federated.Flow
	metrics       *metrics.Metrics
	logger        identity.Logger
	frontendURL   string
	sessionCookie string
	stateCookie   string
	secureCookies bool
	now           func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger identity.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessions enables session backed federated routes
func WithSessions(sessions Sessions) Option {
	return func(s *Server) { s.sessions = sessions }
}

// WithFederatedFlow enables federated login
func WithFederatedFlow(flow *federated.Flow) Option {
	return func(s *Server) { s.flow = flow }
}

// WithMetrics instruments requests and serves /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithFrontendURL sets the base URL federated callbacks redirect to
func WithFrontendURL(url string) Option {
	return func(s *Server) { s.frontendURL = strings.TrimRight(url, "/") }
}

// WithSessionCookie overrides the session cookie name
func WithSessionCookie(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.sessionCookie = name
		}
	}
}

// WithSecureCookies marks cookies Secure
func WithSecureCookies(secure bool) Option {
	return func(s *Server) { s.secureCookies = secure }
}

// New creates a Server
func New(services *identity.Services, opts ...Option) (*Server, error) {
	if services == nil || services.Accounts == nil || services.Authenticator == nil {
		return nil, goerrors.New("api: identity services are required", goerrors.CategoryBadInput)
	}

	s := &Server{
		services:      services,
		logger:        identity.DefaultLogger(),
		sessionCookie: DefaultSessionCookie,
		stateCookie:   DefaultStateCookie,
		secureCookies: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.flow != nil && s.sessions == nil {
		return nil, goerrors.New("api: federated login requires a session store", goerrors.CategoryBadInput)
	}

	return s, nil
}

// App builds a fiber application with every route registered
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "go-identity",
		ErrorHandler:          s.ErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if s.frontendURL != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     s.frontendURL,
			AllowCredentials: true,
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		}))
	}
	if s.metrics != nil {
		app.Use(s.metrics.Middleware())
	}

	s.Register(app)
	return app
}

// Register mounts the routes on r
func (s *Server) Register(r fiber.Router) {
	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler())
	}

	authGroup := r.Group("/auth")
	authGroup.Post("/register", s.register)
	authGroup.Post("/login", s.login)
	authGroup.Post("/logout", s.logout)
	authGroup.Get("/me", s.bearer(), s.me)
	authGroup.Get("/profile-status", s.bearer(), s.profileStatus)

	fed := r.Group("/federated")
	fed.Get("/login", s.federatedLogin)
	fed.Get("/callback", s.federatedCallback)
	fed.Post("/complete-profile", s.authenticated(), s.completeProfile)
	fed.Get("/user", s.authenticated(), s.federatedUser)
	fed.Get("/status", s.optional(), s.federatedStatus)
	fed.Post("/logout", s.federatedLogout)

	user := r.Group("/user", s.bearer())
	user.Get("/profile", s.getProfile)
	user.Put("/profile", s.updateProfile)
	user.Put("/email", s.updateEmail)
	user.Put("/password", s.updatePassword)
	user.Delete("/account", s.deleteAccount)
	user.Put("/credits", s.updateCredits)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
