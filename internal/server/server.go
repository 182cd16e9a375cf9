package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/accounts/internal/account"
	"github.com/dukerupert/accounts/internal/auth"
	"github.com/dukerupert/accounts/internal/email"
	"github.com/dukerupert/accounts/internal/handler"
	"github.com/dukerupert/accounts/internal/metrics"
	"github.com/dukerupert/accounts/internal/middleware"
	"github.com/dukerupert/accounts/internal/storage"
	"github.com/dukerupert/accounts/internal/store"
)

const apiPrefix = "/api/1.0"

type Options struct {
	Clock         clockwork.Clock
	Hasher        auth.Hasher
	SessionTTL    time.Duration
	SweepInterval time.Duration
	Sender        email.Sender
	BaseURL       string
	Images        storage.Store
	// ServeImages exposes GET /images/{handle}.
	ServeImages bool
	RateLimit   int
	RateWindow  time.Duration
	// TrustedProxies lists the peers whose forwarding headers name the
	// client. Empty means every client is identified by its own address.
	TrustedProxies []netip.Prefix
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

type Server struct {
	userH       *handler.UserHandler
	authH       *handler.AuthHandler
	passwordH   *handler.PasswordHandler
	imageH      *handler.ImageHandler
	healthH     *handler.HealthHandler
	authService *auth.Service
	sweeper     *auth.Sweeper
	rateLimiter *middleware.RateLimiter
	clientIP    func(*http.Request) string
	metrics     *metrics.Metrics
	opts        Options
	logger      *slog.Logger
}

func New(db *sql.DB, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.BcryptHasher{}
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = auth.DefaultTTL
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = auth.DefaultSweepInterval
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 10
	}
	if opts.RateWindow == 0 {
		opts.RateWindow = time.Minute
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger
	if opts.Sender == nil {
		opts.Sender = email.LogSender{Logger: logger}
	}

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db, opts.Clock)

	authService := auth.NewService(userStore, sessionStore,
		auth.WithClock(opts.Clock),
		auth.WithTTL(opts.SessionTTL),
		auth.WithHasher(opts.Hasher),
		auth.WithLogger(logger),
		auth.WithMetrics(opts.Metrics),
	)

	mailer := email.NewMailer(opts.Sender, opts.BaseURL, opts.Metrics)
	accountService := account.NewService(userStore, mailer, opts.Images,
		account.WithHasher(opts.Hasher),
		account.WithLogger(logger),
	)

	rateLimiter := middleware.NewRateLimiter(opts.Clock)
	sweeper := auth.NewSweeper(sessionStore, opts.SessionTTL,
		auth.WithSweepInterval(opts.SweepInterval),
		auth.WithSweepClock(opts.Clock),
		auth.WithSweepLogger(logger),
		auth.WithSweepMetrics(opts.Metrics),
		auth.WithSweepHook(rateLimiter.Cleanup),
	)

	return &Server{
		userH:       handler.NewUserHandler(accountService, opts.Clock, logger),
		authH:       handler.NewAuthHandler(authService, opts.Clock, logger),
		passwordH:   handler.NewPasswordHandler(accountService, opts.Clock, logger),
		imageH:      handler.NewImageHandler(opts.Images, logger),
		healthH:     handler.NewHealthHandler(db, logger),
		authService: authService,
		sweeper:     sweeper,
		rateLimiter: rateLimiter,
		clientIP:    middleware.ClientIP(opts.TrustedProxies),
		metrics:     opts.Metrics,
		opts:        opts,
		logger:      logger,
	}
}

// Sweeper returns the expired-session sweeper. The caller owns its lifecycle.
func (s *Server) Sweeper() *auth.Sweeper {
	return s.sweeper
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+apiPrefix+"/users", s.userH.Register)
	mux.HandleFunc("POST "+apiPrefix+"/users/token/{token}", s.userH.Activate)
	mux.HandleFunc("GET "+apiPrefix+"/users", s.userH.List)
	mux.HandleFunc("GET "+apiPrefix+"/users/{id}", s.userH.Get)
	mux.HandleFunc("PUT "+apiPrefix+"/users/{id}", s.userH.Update)
	mux.HandleFunc("DELETE "+apiPrefix+"/users/{id}", s.userH.Delete)

	mux.Handle("POST "+apiPrefix+"/auth", s.rateLimited(s.authH.Login))
	mux.HandleFunc("POST "+apiPrefix+"/logout", s.authH.Logout)

	mux.Handle("POST "+apiPrefix+"/user/password", s.rateLimited(s.passwordH.RequestReset))
	mux.HandleFunc("PUT "+apiPrefix+"/user/password", s.passwordH.Reset)

	if s.opts.ServeImages {
		mux.HandleFunc("GET /images/{handle}", s.imageH.Serve)
	}
	mux.HandleFunc("GET /health", s.healthH.Check)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// metrics and the request log sit directly on the mux so they see the
	// matched pattern
	var h http.Handler = s.metrics.Middleware(mux)
	h = middleware.RequestLogger(s.logger.With("component", "http"), s.clientIP)(h)
	h = middleware.Authenticate(s.authService, s.logger.With("component", "auth_middleware"))(h)
	return middleware.RequestID(h)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, s.clientIP, s.opts.RateLimit, s.opts.RateWindow)(h)
}
