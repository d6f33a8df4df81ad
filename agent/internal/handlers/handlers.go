package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sui-buybot/agent/internal/services"
	"sui-buybot/shared/config"
	"sui-buybot/shared/env"
	"sui-buybot/shared/logger"
)

// API bundles the pipeline components the query endpoints read from.
type API struct {
	Leaderboard *services.Leaderboard
	Boosts      *services.BoostRegistry
	Verifier    services.PaymentVerifier
	Transport   services.DeliveryTransport
	Log         *logger.Logger

	// BaseCtx bounds payment monitors spawned by boost requests so they
	// stop on shutdown.
	BaseCtx context.Context
}

func RegisterRoutes(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "sui-buybot is running"})
	})
}

func RegisterAPIRoutes(router *gin.Engine, api *API) {
	v1 := router.Group("/api/v1")

	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	v1.GET("/leaderboard", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"entries": api.Leaderboard.Snapshot()})
	})

	v1.GET("/boosts/:token", func(c *gin.Context) {
		token := c.Param("token")
		boost, active := api.Boosts.Status(token)
		if !active {
			c.JSON(http.StatusOK, gin.H{"tokenAddress": token, "boosted": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"tokenAddress": token,
			"boosted":      true,
			"endsAt":       boost.EndTime.UTC(),
			"paidSui":      boost.PaidAmount,
		})
	})

	v1.POST("/boosts", api.requestBoost)
}

type boostRequestBody struct {
	TokenAddress string `json:"tokenAddress" binding:"required"`
	TokenSymbol  string `json:"tokenSymbol"`
	Owner        string `json:"owner" binding:"required"`
	Hours        int    `json:"hours" binding:"required"`
}

// requestBoost registers a pending boost purchase and starts watching the
// boost wallet for the tier payment. Activation happens only after the
// payment is confirmed on chain.
func (api *API) requestBoost(c *gin.Context) {
	var body boostRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	cfg := config.GetGlobalConfig()
	tier, ok := cfg.Boost.Tier(body.Hours)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no boost tier for the requested duration"})
		return
	}
	if env.BoostWalletAddress == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "boost purchases are not configured"})
		return
	}

	req := services.BoostRequest{
		RequestID:    uuid.NewString(),
		TokenAddress: body.TokenAddress,
		TokenSymbol:  body.TokenSymbol,
		Owner:        body.Owner,
		Hours:        tier.Hours,
		PriceSUI:     tier.PriceSUI,
	}

	timeout := time.Duration(cfg.Boost.PaymentTimeoutMinutes) * time.Minute
	poll := time.Duration(cfg.Boost.PaymentPollSeconds) * time.Second
	go services.MonitorBoostPayment(api.BaseCtx, api.Verifier, api.Boosts, api.Transport,
		env.TrendingChannel, env.BoostWalletAddress, req, timeout, poll, api.Log)

	api.Log.Info("Boost payment monitor started", "requestID", req.RequestID,
		"token", req.TokenAddress, "hours", req.Hours, "priceSui", req.PriceSUI)

	c.JSON(http.StatusAccepted, gin.H{
		"requestId":      req.RequestID,
		"payTo":          env.BoostWalletAddress,
		"priceSui":       req.PriceSUI,
		"hours":          req.Hours,
		"paymentTimeout": timeout.String(),
	})
}
