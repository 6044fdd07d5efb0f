package staking

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/AetherDEX/apps/staking/internal/auth"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// InitializeRequest creates a pool
type InitializeRequest struct {
	PoolID       string `json:"pool_id" binding:"required,max=66"`
	APY          uint64 `json:"apy"`
	LockDuration int64  `json:"lock_duration"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time"`
}

// AmountRequest carries a token amount in the smallest unit
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Initialize(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}

	pool, err := h.service.Initialize(c.Request.Context(), req.PoolID, caller, Params{
		APY:          req.APY,
		LockDuration: req.LockDuration,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, pool)
}

func (h *Handler) Stake(c *gin.Context) {
	h.amountOp(c, h.service.Stake)
}

func (h *Handler) FundRewards(c *gin.Context) {
	h.amountOp(c, h.service.FundRewards)
}

func (h *Handler) Unstake(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	res, err := h.service.Unstake(c.Request.Context(), c.Param("pool_id"), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ClaimRewards(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	res, err := h.service.ClaimRewards(c.Request.Context(), c.Param("pool_id"), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateParams(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var params Params
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}

	pool, err := h.service.UpdateParams(c.Request.Context(), c.Param("pool_id"), caller, params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

func (h *Handler) GetPool(c *gin.Context) {
	pool, err := h.service.GetPool(c.Request.Context(), c.Param("pool_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

func (h *Handler) ListPools(c *gin.Context) {
	limit, offset := pagination(c)

	pools, err := h.service.ListPools(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pools)
}

func (h *Handler) GetPosition(c *gin.Context) {
	view, err := h.service.GetPosition(c.Request.Context(), c.Param("pool_id"), c.Param("owner"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ListPositions(c *gin.Context) {
	limit, offset := pagination(c)
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))

	positions, err := h.service.ListPositions(c.Request.Context(), c.Param("pool_id"), activeOnly, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (h *Handler) ListEvents(c *gin.Context) {
	limit, offset := pagination(c)

	events, err := h.service.ListEvents(c.Request.Context(), c.Param("pool_id"), c.Query("owner"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	pools := router.Group("/pools")
	{
		pools.GET("", h.ListPools)
		pools.GET("/:pool_id", h.GetPool)
		pools.GET("/:pool_id/positions", h.ListPositions)
		pools.GET("/:pool_id/positions/:owner", h.GetPosition)
		pools.GET("/:pool_id/events", h.ListEvents)
	}

	signed := router.Group("/pools", requireAuth)
	{
		signed.POST("", h.Initialize)
		signed.POST("/:pool_id/stake", h.Stake)
		signed.POST("/:pool_id/unstake", h.Unstake)
		signed.POST("/:pool_id/claim", h.ClaimRewards)
		signed.POST("/:pool_id/fund", h.FundRewards)
		signed.PUT("/:pool_id/params", h.UpdateParams)
	}
}

type amountFunc func(ctx context.Context, poolID, caller string, amount decimal.Decimal) (*Result, error)

func (h *Handler) amountOp(c *gin.Context, op amountFunc) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_REQUEST"})
		return
	}

	res, err := op(c.Request.Context(), c.Param("pool_id"), caller, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) caller(c *gin.Context) (string, bool) {
	caller, ok := auth.UserAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
			"code":  "USER_NOT_AUTHENTICATED",
		})
		return "", false
	}
	return caller, true
}

// StatusOf maps a staking error to its HTTP status
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrPoolNotFound), errors.Is(err, ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyInitialized), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrPoolClosed), errors.Is(err, ErrLockActive),
		errors.Is(err, ErrNoStake), errors.Is(err, ErrNoRewards),
		errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientRewardPool):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Staking request failed")
		message = "internal server error"
	}

	c.JSON(status, gin.H{
		"error": message,
		"code":  Code(err),
		"op":    OpOf(err),
	})
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
