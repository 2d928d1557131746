package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/fleet-inventory/internal/config"
	"github.com/iliyamo/fleet-inventory/internal/database"
	"github.com/iliyamo/fleet-inventory/internal/handler"
	"github.com/iliyamo/fleet-inventory/internal/logger"
	"github.com/iliyamo/fleet-inventory/internal/metrics"
	"github.com/iliyamo/fleet-inventory/internal/middleware"
	"github.com/iliyamo/fleet-inventory/internal/queue"
	"github.com/iliyamo/fleet-inventory/internal/repository"
	"github.com/iliyamo/fleet-inventory/internal/router"
	"github.com/iliyamo/fleet-inventory/internal/service"
	"github.com/iliyamo/fleet-inventory/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SecretGenerated {
		log.Warn("JWT_SECRET not set; using a random per-process secret, tokens will not survive a restart")
	}

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting, response cache and token revocation are off")
	} else {
		defer rdb.Close()
	}

	signer, err := utils.NewTokenSigner(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	if err != nil {
		return err
	}
	authMetrics := metrics.NewAuth()

	opts := []service.Option{service.WithMetrics(authMetrics)}
	var revoked middleware.RevocationChecker
	if cfg.TokenRevocation && rdb != nil {
		denylist := service.NewRedisDenylist(rdb)
		opts = append(opts, service.WithRevoker(denylist))
		revoked = denylist
	} else if cfg.TokenRevocation {
		log.Warn("TOKEN_REVOCATION_ENABLED ignored without redis")
	}
	if cfg.MailerEnabled {
		opts = append(opts, service.WithMailer(service.NewRabbitPublisher(cfg.RabbitMQURL)))
		consumer := queue.NewMailConsumer(cfg.RabbitMQURL, "logs", log.Named("mail"))
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("mail consumer stopped", zap.Error(err))
			}
		}()
	}

	auth, err := service.NewAuthService(cfg, repository.NewUserRepo(db), signer, log.Named("auth"), opts...)
	if err != nil {
		return err
	}

	engines := repository.NewEngineRepo(db)
	gate := middleware.JWTAuth(signer, revoked, log)
	cacheCfg := config.LoadCacheConfig()

	e := router.New(cfg.CORSAllowedOrigins, log)
	router.RegisterRoutes(e, db, authMetrics.Handler())
	router.RegisterAuth(e, handler.NewAuthHandler(auth), gate,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterFleet(e, router.Fleet{
		Cars:        handler.NewVehicleHandler(repository.NewCarRepo(db), engines),
		Motorcycles: handler.NewVehicleHandler(repository.NewMotorcycleRepo(db), engines),
		Engines:     handler.NewEngineHandler(engines),
	}, gate, middleware.NewRedisCache(cacheCfg, rdb, log), middleware.InvalidateOnWrite(cacheCfg, rdb, log))

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", ":"+cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = e.Shutdown(shutdownCtx)
	auth.Wait()
	return err
}
