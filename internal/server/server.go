// Package server provides the HTTP server and routing for visitbook.
package server

import (
	"context"
	"net/http"

	"github.com/example/visitbook/internal/api"
	"github.com/example/visitbook/internal/bookings"
	"github.com/example/visitbook/internal/config"
	"github.com/example/visitbook/internal/crypto"
	"github.com/example/visitbook/internal/database"
	"github.com/example/visitbook/internal/engine"
	"github.com/example/visitbook/internal/google"
	"github.com/example/visitbook/internal/server/middleware"
	"github.com/example/visitbook/internal/tokens"
	"github.com/example/visitbook/internal/util"
	"github.com/example/visitbook/internal/webhook"
	"github.com/example/visitbook/internal/workers"
)

// Server is the main HTTP server for visitbook.
type Server struct {
	config        *config.Config
	db            *database.DB
	router        *http.ServeMux
	bookingRepo   *bookings.Repository
	tokenRepo     *tokens.Repository
	encryptor     *crypto.Encryptor
	signer        *crypto.TokenSigner
	rateLimiter   *middleware.RateLimiter
	oauthMgr      *google.OAuthManager
	gateway       *google.Gateway
	engine        *engine.Engine
	webhookClient *webhook.Client
	auditLogger   *engine.AuditLogger
	apiHandler    *api.Handler
	sweeper       *workers.Sweeper
	cleanupWorker *workers.CleanupWorker
}

// New creates a new Server instance.
func New(cfg *config.Config, db *database.DB) (*Server, error) {
	encryptor, err := crypto.NewEncryptor(cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, err
	}

	signer, err := crypto.NewTokenSigner(cfg.Auth.SecretKey)
	if err != nil {
		return nil, err
	}

	formatter, err := util.NewDisplayFormatter(cfg.Display.Timezone, cfg.Display.DatetimeFormat)
	if err != nil {
		return nil, err
	}
	util.SetDefaultFormatter(formatter)

	bookingRepo := bookings.NewRepository(db)
	tokenRepo := tokens.NewRepository(db)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	oauthMgr := google.NewOAuthManager(cfg, db, encryptor)
	gateway := google.NewGateway(oauthMgr, cfg.Google.Timeout)

	auditLogger := engine.NewAuditLogger(db)

	eng := engine.NewEngine(cfg, bookingRepo, tokenRepo, gateway, signer, auditLogger)

	webhookClient := webhook.NewClient(cfg, db)
	if webhookClient.Enabled() {
		eng.SetNotifier(webhookClient)
	}

	apiHandler := api.NewHandler(cfg, eng, oauthMgr, gateway, auditLogger, db)

	sweeper := workers.NewSweeper(eng, cfg.Booking.SweepInterval)
	cleanupWorker := workers.NewCleanupWorker(db, tokenRepo, &cfg.Retention)

	s := &Server{
		config:        cfg,
		db:            db,
		router:        http.NewServeMux(),
		bookingRepo:   bookingRepo,
		tokenRepo:     tokenRepo,
		encryptor:     encryptor,
		signer:        signer,
		rateLimiter:   rateLimiter,
		oauthMgr:      oauthMgr,
		gateway:       gateway,
		engine:        eng,
		webhookClient: webhookClient,
		auditLogger:   auditLogger,
		apiHandler:    apiHandler,
		sweeper:       sweeper,
		cleanupWorker: cleanupWorker,
	}

	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	// Middleware chain, applied in reverse order
	var handler http.Handler = s.router

	handler = middleware.RequestID(handler)
	handler = middleware.Logging(handler)
	handler = middleware.CORS(handler)
	handler = middleware.SecurityHeaders(handler)

	// Recovery outermost, catches panics from everything below
	handler = middleware.Recovery(handler)

	return handler
}

// StartBackgroundWorkers starts the expiry sweeper, retention cleanup,
// and webhook retry workers.
func (s *Server) StartBackgroundWorkers(ctx context.Context) {
	go s.sweeper.Start(ctx)
	go s.cleanupWorker.Start(ctx)

	if s.webhookClient.Enabled() {
		go s.webhookClient.StartRetryWorker(ctx)
	}

	util.Info("Background workers started")
}

// DB returns the database connection.
func (s *Server) DB() *database.DB {
	return s.db
}

// Config returns the server configuration.
func (s *Server) Config() *config.Config {
	return s.config
}

// Engine returns the booking engine.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}
