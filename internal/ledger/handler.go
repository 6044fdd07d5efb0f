package ledger

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// FaucetRequest mints test tokens to an address
type FaucetRequest struct {
	Address string          `json:"address" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

type Handler struct {
	ledger        Ledger
	faucetEnabled bool
}

func NewHandler(ledger Ledger, faucetEnabled bool) *Handler {
	return &Handler{ledger: ledger, faucetEnabled: faucetEnabled}
}

func (h *Handler) GetBalance(c *gin.Context) {
	account := c.Param("account")
	if common.IsHexAddress(account) {
		account = common.HexToAddress(account).Hex()
	}

	balance, err := h.ledger.BalanceOf(c.Request.Context(), account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account": account,
		"balance": balance,
	})
}

func (h *Handler) Faucet(c *gin.Context) {
	var req FaucetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address format"})
		return
	}
	address := common.HexToAddress(req.Address).Hex()

	if err := h.ledger.Mint(c.Request.Context(), address, req.Amount); err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logrus.WithFields(logrus.Fields{
		"account": address,
		"amount":  req.Amount.String(),
	}).Info("Faucet minted tokens")

	c.JSON(http.StatusCreated, gin.H{
		"account": address,
		"minted":  req.Amount,
	})
}

func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/balances/:account", h.GetBalance)
	if h.faucetEnabled {
		router.POST("/faucet", h.Faucet)
	}
}
