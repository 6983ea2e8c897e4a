package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/leaderboard"
	"github.com/anonto42/campus-feed/backend/internal/metrics"
	"github.com/anonto42/campus-feed/backend/internal/middleware"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/router"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/anonto42/campus-feed/backend/pkg/config"
	"github.com/anonto42/campus-feed/backend/pkg/firebase"
	"github.com/anonto42/campus-feed/backend/pkg/logger"
	"github.com/anonto42/campus-feed/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{Use: "campus-feed", Short: "Campus feed backend", SilenceUsage: true}
	root.AddCommand(serveCmd(ctx), reconcileCmd(ctx), tokenCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime holds what every command needs, plus a cleanup for it.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	deps    router.Dependencies
	cleanup func()
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg := config.Load()
	l := logger.New(cfg.Env)

	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cleanup := []func(){db.CloseDB}

	var fb *firebase.App
	if cfg.AuthMode == "firebase" || cfg.StoreDriver == "firestore" {
		fb, err = firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.StoreDriver == "firestore")
		if err != nil {
			db.CloseDB()
			return nil, err
		}
		cleanup = append(cleanup, fb.Close)
	}

	rt := &runtime{cfg: cfg, logger: l, cleanup: func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}}

	var s store.Store
	switch cfg.StoreDriver {
	case "mongo":
		s = store.NewMongoStore(db.Mongo, cfg.MongoDatabase)
	case "firestore":
		s = store.NewFirestoreStore(fb.Firestore)
	case "memory":
		s = store.NewMemoryStore()
		l.Warn().Msg("using the in-memory document store, data is lost on exit")
	default:
		rt.cleanup()
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	var queue repositories.ReconcileRepository
	if db.Postgres != nil {
		if err := repositories.Migrate(db.Postgres); err != nil {
			rt.cleanup()
			return nil, fmt.Errorf("migrate reconcile tasks: %w", err)
		}
		queue = repositories.NewPostgresReconcileRepository(db.Postgres)
	} else {
		queue = repositories.NewMemoryReconcileRepository()
	}

	var cache leaderboard.Cache
	if db.Redis != nil {
		cache = leaderboard.NewRedisCache(db.Redis)
	}

	var auth echo.MiddlewareFunc
	switch cfg.AuthMode {
	case "firebase":
		auth = middleware.FirebaseAuthMiddleware(fb.AuthClient)
	case "jwt":
		auth = middleware.JWTAuthMiddleware(cfg.JWTSecret)
	default:
		rt.cleanup()
		return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
	}

	rt.deps = router.Dependencies{
		Store:             s,
		Queue:             queue,
		Cache:             cache,
		Auth:              auth,
		InstitutionDomain: cfg.InstitutionDomain,
		RateLimitRPS:      cfg.RateLimitRPS,
		Logger:            l,
	}
	return rt, nil
}

func serveCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.cleanup()

			e := echo.New()
			e.HideBanner = true
			e.Validator = validators.NewValidator()
			router.SetupMiddleware(e, rt.logger)
			app := router.SetupRoutes(e, rt.deps)

			metrics.StartServer(":" + rt.cfg.MetricsPort)
			go app.Reconciler.Run(ctx, rt.cfg.ReconcileInterval)

			go func() {
				if err := e.Start(":" + rt.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server stopped")
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			rt.logger.Info().Msg("shutting down")
			return e.Shutdown(shutdownCtx)
		},
	}
}

func reconcileCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.cleanup()

			rep, err := router.NewApp(rt.deps).Reconciler.RunOnce(ctx)
			if err != nil {
				return err
			}
			rt.logger.Info().Int("replayed", rep.Replayed).Int("failed", rep.Failed).Int("dead", rep.Dead).Int("graph_repaired", rep.GraphRepaired).Msg("reconcile done")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HS256 token for local testing (AUTH_MODE=jwt)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg := config.Load()
			token, err := middleware.SignToken(cfg.JWTSecret, userID, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 72*time.Hour, "token lifetime")
	return cmd
}
