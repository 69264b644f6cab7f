package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/gorilla/websocket"

	"poolwager/internal/contract"
	"poolwager/internal/host"
	"poolwager/internal/ledger"
	"poolwager/internal/models"
	"poolwager/internal/services"
)

// IdentityHeader carries the calling account on state-changing requests.
const IdentityHeader = "X-Account"

const callerKey = "caller"

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service  *services.LotteryService
	upgrader websocket.Upgrader
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.LotteryService) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterPublicRoutes registers the read-only routes and account provisioning.
func (h *HTTPHandler) RegisterPublicRoutes(router gin.IRouter) {
	router.GET("/abi", h.GetABI)
	router.POST("/accounts", h.ProvisionAccounts)
	router.GET("/accounts/:address", h.GetAccount)
	router.GET("/contracts", h.ListContracts)
	router.GET("/contracts/:address/manager", h.GetManager)
	router.GET("/contracts/:address/players", h.GetPlayers)
	router.GET("/contracts/:address/balance", h.GetBalance)
	router.GET("/contracts/:address/receipts", h.GetReceipts)
	router.GET("/events", h.StreamEvents)
}

// RegisterIdentityRoutes registers the routes that act on behalf of the
// caller named by IdentityMiddleware.
func (h *HTTPHandler) RegisterIdentityRoutes(router gin.IRouter) {
	router.POST("/contracts", h.Deploy)
	router.POST("/contracts/:address/enter", h.Enter)
	router.POST("/contracts/:address/pick-winner", h.PickWinner)
}

// IdentityMiddleware resolves the caller from the X-Account header.
func (h *HTTPHandler) IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(IdentityHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": IdentityHeader + " header is required"})
			return
		}
		caller, err := models.ParseAddress(raw)
		if err != nil || caller.IsZero() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + IdentityHeader + " header"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func caller(c *gin.Context) models.Address {
	return c.MustGet(callerKey).(models.Address)
}

// addressParam parses :address, writing a 400 on failure.
func addressParam(c *gin.Context) (models.Address, bool) {
	addr, err := models.ParseAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return addr, false
	}
	return addr, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, contract.ErrInsufficientStake),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, host.ErrInvalidValue),
		errors.Is(err, host.ErrInvalidCaller),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, contract.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, host.ErrUnknownContract):
		return http.StatusNotFound
	case errors.Is(err, contract.ErrNoParticipants):
		return http.StatusConflict
	case errors.Is(err, contract.ErrTransferFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) fail(c *gin.Context, err error, extra gin.H) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

// GetABI returns the contract interface description.
func (h *HTTPHandler) GetABI(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.ABI())
}

type provisionRequest struct {
	Count   int    `json:"count"`
	Funding string `json:"funding"`
}

// ProvisionAccounts creates funded accounts.
func (h *HTTPHandler) ProvisionAccounts(c *gin.Context) {
	req := provisionRequest{Count: 1, Funding: "100"}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	funding, err := models.ParseEther(req.Funding)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	accounts, err := h.service.ProvisionAccounts(req.Count, funding)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"accounts": accounts, "funding": models.FormatEther(funding)})
}

// GetAccount returns an account's ledger balance.
func (h *HTTPHandler) GetAccount(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	balance := h.service.AccountBalance(addr)
	c.JSON(http.StatusOK, gin.H{"address": addr, "balance": models.FormatEther(balance), "wei": balance.String()})
}

// ListContracts returns every deployment.
func (h *HTTPHandler) ListContracts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"contracts": h.service.Deployments()})
}

// Deploy creates a lottery managed by the caller.
func (h *HTTPHandler) Deploy(c *gin.Context) {
	d, err := h.service.Deploy(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"contract":     d,
		"minimumStake": models.FormatEther(h.service.MinimumStake()),
	})
}

// GetManager returns the lottery's manager.
func (h *HTTPHandler) GetManager(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	manager, err := h.service.Manager(addr)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"manager": manager})
}

// GetPlayers returns the participants in entry order.
func (h *HTTPHandler) GetPlayers(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	players, err := h.service.GetPlayers(addr)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": players})
}

// GetBalance returns the pooled balance.
func (h *HTTPHandler) GetBalance(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	balance, err := h.service.Balance(addr)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": models.FormatEther(balance), "wei": balance.String()})
}

// GetReceipts returns the lottery's journaled receipts.
func (h *HTTPHandler) GetReceipts(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	receipts, err := h.service.Receipts(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}

type enterRequest struct {
	Value string `json:"value" binding:"required"`
}

// Enter stakes the posted value on behalf of the caller.
func (h *HTTPHandler) Enter(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	value, err := models.ParseEther(req.Value)
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	receipt, err := h.service.Enter(c.Request.Context(), addr, caller(c), value)
	if err != nil {
		h.fail(c, err, gin.H{"receipt": receiptOrNil(receipt)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

// PickWinner draws the winner on behalf of the caller.
func (h *HTTPHandler) PickWinner(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	result, receipt, err := h.service.PickWinner(c.Request.Context(), addr, caller(c))
	if err != nil {
		h.fail(c, err, gin.H{"receipt": receiptOrNil(receipt)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"winner":  result.Winner,
		"index":   result.Index,
		"amount":  models.FormatEther(result.Amount),
		"receipt": receipt,
	})
}

// receiptOrNil hides the empty receipt of a call rejected before it reached
// the host.
func receiptOrNil(r models.Receipt) any {
	if r.TxID == "" {
		return nil
	}
	return r
}
