package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/AetherDEX/apps/staking/internal/auth"
	"github.com/irfndi/AetherDEX/apps/staking/internal/ledger"
	"github.com/irfndi/AetherDEX/apps/staking/internal/metrics"
	"github.com/irfndi/AetherDEX/apps/staking/internal/staking"
	"github.com/irfndi/AetherDEX/apps/staking/internal/websocket"
	"gorm.io/gorm"
)

// Dependencies are the components the HTTP surface is built from
type Dependencies struct {
	DB             *gorm.DB
	Staking        staking.Service
	Ledger         ledger.Ledger
	Auth           *auth.AuthMiddleware
	WebSocket      *websocket.Server
	AllowedOrigins []string
	FaucetEnabled  bool
}

// NewRouter wires middleware and routes onto a new gin engine
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Security middleware
	router.Use(auth.SecurityHeaders())
	router.Use(auth.SecureCORS(deps.AllowedOrigins))
	router.Use(metrics.Middleware())

	router.GET("/health", health(deps.DB))
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong"})
		})

		stakingHandler := staking.NewHandler(deps.Staking)
		stakingHandler.RegisterRoutes(v1, deps.Auth.RequireAuth())

		ledgerHandler := ledger.NewHandler(deps.Ledger, deps.FaucetEnabled)
		ledgerHandler.RegisterRoutes(v1)
	}

	if deps.WebSocket != nil {
		deps.WebSocket.RegisterRoutes(router)
	}

	return router
}

func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Unix(),
			"service":   "aetherdex-staking",
		})
	}
}
