package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/AetherDEX/apps/staking/internal/auth"
	"github.com/irfndi/AetherDEX/apps/staking/internal/config"
	"github.com/irfndi/AetherDEX/apps/staking/internal/database"
	"github.com/irfndi/AetherDEX/apps/staking/internal/ledger"
	"github.com/irfndi/AetherDEX/apps/staking/internal/lock"
	"github.com/irfndi/AetherDEX/apps/staking/internal/server"
	"github.com/irfndi/AetherDEX/apps/staking/internal/staking"
	"github.com/irfndi/AetherDEX/apps/staking/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	cfg.ConfigureLogger()
	gin.SetMode(cfg.GinMode)

	// Database connection
	db, err := database.Open(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	// Redis backs the pool lock when configured
	var (
		rdb    *redis.Client
		locker lock.Locker = lock.NewLocalLocker()
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to Redis")
		}
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
		logrus.WithField("addr", cfg.RedisAddr).Info("Using Redis pool locks")
	} else {
		logrus.Warn("REDIS_ADDR not set, pool locks are process-local")
	}

	wsServer := websocket.NewServer(cfg.AllowedOrigins)
	wsServer.Start()

	stakingService := staking.NewService(staking.NewRepository(db), staking.Options{
		Locker:     locker,
		Notifier:   wsServer.Hub,
		MaxRetries: cfg.TxMaxRetries,
	})

	router := server.NewRouter(server.Dependencies{
		DB:             db,
		Staking:        stakingService,
		Ledger:         ledger.NewLedger(db),
		Auth:           auth.NewAuthMiddleware(cfg.AuthWindow),
		WebSocket:      wsServer,
		AllowedOrigins: cfg.AllowedOrigins,
		FaucetEnabled:  cfg.FaucetEnabled,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"driver": cfg.DBDriver,
			"faucet": cfg.FaucetEnabled,
		}).Info("Starting AetherDEX staking server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	}
	wsServer.Stop()

	if err := database.Close(db); err != nil {
		logrus.WithError(err).Warn("Failed to close database")
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close Redis")
		}
	}

	logrus.Info("Server exited")
}
