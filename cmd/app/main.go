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
	_ "time/tzdata"

	"ecoquest_miniapp/internal/api"
	"ecoquest_miniapp/internal/middleware"
	"ecoquest_miniapp/pkg/auth"
	"ecoquest_miniapp/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "ecoquest",
		Short:         "Carbon progress and reward engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml)")

	root.AddCommand(newServeCmd(&configFile))
	root.AddCommand(newMigrateCmd(&configFile))
	root.AddCommand(newSeedCmd(&configFile))
	root.AddCommand(newDecayCmd(&configFile))
	return root
}

// bootstrap loads the config, initializes the logger and wires the engine.
func bootstrap(configFile string) (*app, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return newApp(cfg)
}

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configFile)
		},
	}
}

func newMigrateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(*configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()
			return a.repo.Migrate(commandContext(cmd))
		},
	}
}

func newSeedCmd(configFile *string) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the mission catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(*configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()
			if catalogPath != "" {
				a.cfg.CatalogPath = catalogPath
			}
			return a.seed(commandContext(cmd))
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "mission catalog YAML (default built-in)")
	return cmd
}

func newDecayCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "decay",
		Short: "Run the daily vitality decay and mission cleanup once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(*configFile)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()
			return a.scheduler.RunOnce(commandContext(cmd))
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runServe(parent context.Context, configFile string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(configFile)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()
	zapLogger := logger.Logger()

	if err := a.prepare(ctx); err != nil {
		return err
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	if next, err := a.scheduler.NextRun(); err == nil {
		zapLogger.Info("Next daily maintenance", zap.Time("at", next))
	}

	cfg := a.cfg
	telegramAuth := auth.NewTelegramAuth(cfg.TelegramAuth.TelegramBotToken, cfg.TelegramAuth.DebugMode, cfg.TelegramAuth.Expiry)
	if cfg.TelegramAuth.DebugMode {
		zapLogger.Warn("Telegram init data signatures are not verified (debug mode)")
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
	}
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		if err := a.repo.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	api.NewUserRoutes(v1, a.svc.Users, telegramAuth)
	api.NewMissionRoutes(v1, a.svc.Missions, a.svc.Claims, telegramAuth, a.clock)
	api.NewVitalityRoutes(v1, a.svc.Vitality, telegramAuth, a.clock)
	api.NewActivityRoutes(v1, a.svc.Activities, telegramAuth, a.clock)

	authz, err := middleware.NewAuthorization(cfg.Internal.AllowedCIDRs, cfg.Internal.Token)
	if err != nil {
		return err
	}
	if cfg.Internal.Token == "" {
		zapLogger.Warn("internal.token is empty; internal endpoints reject every call")
	}
	internalRouter := gin.New()
	internalRouter.Use(gin.Recovery())
	// Peers are never proxies on the internal listener.
	if err := internalRouter.SetTrustedProxies(nil); err != nil {
		return err
	}
	api.NewInternalRoutes(internalRouter, a.svc.Vitality, authz, a.clock)

	servers := []*http.Server{
		{Addr: fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port), Handler: router},
		{Addr: fmt.Sprintf("%s:%s", cfg.Internal.Host, cfg.Internal.Port), Handler: internalRouter},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			zapLogger.Info("Starting server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		zapLogger.Info("Servers stopped")
		return errors.Join(errs...)
	})

	return g.Wait()
}
