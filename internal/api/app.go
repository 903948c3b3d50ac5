package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/cryptoforum/internal/analysis"
	"github.com/npezzotti/cryptoforum/internal/config"
	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/forum"
	"github.com/npezzotti/cryptoforum/internal/logging"
	"github.com/npezzotti/cryptoforum/internal/server"
	"github.com/rs/zerolog"
)

type ForumApp struct {
	log            zerolog.Logger
	repo           database.StateRepository
	forum          *forum.Forum
	analysis       *analysis.Service
	srv            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	tokenTTL       time.Duration
	allowedOrigins []string
}

// NewForumApp registers the API routes on mux and wraps it with the CORS,
// logging and panic recovery middleware.
func NewForumApp(
	mux *http.ServeMux,
	logger zerolog.Logger,
	f *forum.Forum,
	cs *server.ChatServer,
	an *analysis.Service,
	repo database.StateRepository,
	cfg *config.Config,
) *ForumApp {
	s := &ForumApp{
		log:            logger,
		repo:           repo,
		forum:          f,
		analysis:       an,
		cs:             cs,
		signingKey:     cfg.Auth.SigningKey,
		tokenTTL:       cfg.Auth.TokenTTL,
		allowedOrigins: cfg.Server.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/oauth", s.completeOAuth)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("POST /api/analysis", s.authMiddleware(s.analyze))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = logging.HTTPMiddleware(logger)(h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *ForumApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *ForumApp) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	return s.srv.ListenAndServe()
}

func (s *ForumApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
