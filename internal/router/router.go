package router

import (
	"github.com/anonto42/campus-feed/backend/internal/content"
	"github.com/anonto42/campus-feed/backend/internal/graph"
	"github.com/anonto42/campus-feed/backend/internal/handlers"
	"github.com/anonto42/campus-feed/backend/internal/leaderboard"
	"github.com/anonto42/campus-feed/backend/internal/ledger"
	"github.com/anonto42/campus-feed/backend/internal/notify"
	"github.com/anonto42/campus-feed/backend/internal/realtime"
	"github.com/anonto42/campus-feed/backend/internal/reconcile"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo, logger zerolog.Logger) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
	e.Use(eMiddleware.RequestLoggerWithConfig(eMiddleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v eMiddleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))
	logger.Debug().Msg("global middleware configured")
}

// Dependencies are the external pieces the routes are built on.
type Dependencies struct {
	Store             store.Store
	Queue             repositories.ReconcileRepository
	Cache             leaderboard.Cache
	Auth              echo.MiddlewareFunc
	InstitutionDomain string
	RateLimitRPS      float64
	Logger            zerolog.Logger
}

// App exposes the services wired by SetupRoutes.
type App struct {
	Ledger     *ledger.Ledger
	Graph      *graph.Manager
	Content    *content.Service
	Notifier   *notify.Notifier
	Board      *leaderboard.Board
	Reconciler *reconcile.Reconciler
}

// NewApp builds the services over deps.
func NewApp(deps Dependencies) *App {
	logger := deps.Logger
	userRepo := repositories.NewUserRepository(deps.Store)
	postRepo := repositories.NewPostRepository(deps.Store)
	notificationRepo := repositories.NewNotificationRepository(deps.Store)

	l := ledger.New(userRepo, deps.Queue, logger)
	g := graph.New(userRepo, logger)
	n := notify.New(deps.Store, notificationRepo, deps.Queue, logger)
	return &App{
		Ledger:     l,
		Graph:      g,
		Content:    content.NewService(postRepo, userRepo, l, n, logger),
		Notifier:   n,
		Board:      leaderboard.New(userRepo, deps.Cache, logger),
		Reconciler: reconcile.New(deps.Queue, l, n, g, logger),
	}
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, deps Dependencies) *App {
	logger := deps.Logger
	app := NewApp(deps)
	userRepo := repositories.NewUserRepository(deps.Store)

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	api := e.Group("/api/v1")
	if deps.RateLimitRPS > 0 {
		api.Use(eMiddleware.RateLimiter(eMiddleware.NewRateLimiterMemoryStore(rate.Limit(deps.RateLimitRPS))))
	}
	api.Use(deps.Auth)
	logger.Debug().Msg("authentication middleware applied to /api/v1 group")

	handlers.NewAuthHandler(userRepo, deps.InstitutionDomain).RegisterAuthRoutes(api)
	logger.Debug().Msg("auth routes configured")

	handlers.NewUserHandler(userRepo).RegisterProfileRoutes(api)
	handlers.NewFollowHandler(app.Graph).RegisterFollowRoutes(api)
	logger.Debug().Msg("user and follow routes configured")

	handlers.NewPostHandler(app.Content).RegisterPostRoutes(api)
	handlers.NewLikeHandler(app.Content).RegisterLikeRoutes(api)
	handlers.NewCommentHandler(app.Content).RegisterCommentRoutes(api)
	logger.Debug().Msg("post, like and comment routes configured")

	handlers.NewNotificationHandler(app.Notifier).RegisterNotificationRoutes(api)
	handlers.NewLeaderboardHandler(app.Board).RegisterLeaderboardRoutes(api)
	handlers.NewLiveHandler(deps.Store, realtime.Options{FeedLimit: 50}, logger).RegisterLiveRoutes(api)
	logger.Debug().Msg("notification, leaderboard and live routes configured")

	logger.Info().Msg("all routes configured")
	return app
}
