package server

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/roadlog/fleet-auth/auth"
	"github.com/roadlog/fleet-auth/internal/config"
	"github.com/roadlog/fleet-auth/users"
)

type Server struct {
	env          string // Environment (e.g., "DEV", "PROD")
	mux          *http.ServeMux
	routes       []string
	config       config.Config
	auth         *auth.Service
	users        users.Repo
	log          zerolog.Logger
	loginLimiter *rateLimiter
}

func New(cfg config.Config, userRepo users.Repo, authService *auth.Service, log zerolog.Logger) (*Server, error) {
	if userRepo == nil {
		return nil, errors.New("[Server New] user repo is required")
	}
	if authService == nil {
		return nil, errors.New("[Server New] auth service is required")
	}

	s := &Server{
		mux:          http.NewServeMux(),
		config:       cfg,
		auth:         authService,
		users:        userRepo,
		log:          log,
		loginLimiter: newRateLimiter(cfg.GetLoginRateLimit(), cfg.GetLoginRateWindow()),
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		s.log.Debug().Str("route", route).Msg("registered")
	}
}
