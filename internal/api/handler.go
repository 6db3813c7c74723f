package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/apperrors"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderService is what the HTTP layer calls into
type OrderService interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*service.CreateOrderResponse, error)
	GetOrder(ctx context.Context, orderID string) (*service.OrderDetails, error)
	DeleteOrder(ctx context.Context, orderID string) error
	RestoreOrder(ctx context.Context, orderID string) error
	GetCustomer(ctx context.Context, phone string) (*service.CustomerDetails, error)
	ValidateDiscount(ctx context.Context, req *service.ValidateDiscountRequest) (*service.ValidateDiscountResponse, error)
}

// StockReader reports pool counters
type StockReader interface {
	Levels(ctx context.Context, variantID int64) ([]models.VariantStock, error)
}

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orderService OrderService
	stock        StockReader
	checks       map[string]Pinger
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService OrderService, stock StockReader, checks map[string]Pinger) *Handler {
	return &Handler{
		orderService: orderService,
		stock:        stock,
		checks:       checks,
		logger:       util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.DELETE("/orders/:id", h.deleteOrder)
		v1.POST("/orders/:id/restore", h.restoreOrder)
		v1.GET("/customers/:phone", h.getCustomer)
		v1.POST("/discounts/validate", h.validateDiscount)
		v1.GET("/variants/:id/stock", h.getVariantStock)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, apperrors.Validation("invalid request body: %v", err))
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	details, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	if err := h.orderService.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) restoreOrder(c *gin.Context) {
	if err := h.orderService.RestoreOrder(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": c.Param("id"), "restored": true})
}

func (h *Handler) getCustomer(c *gin.Context) {
	details, err := h.orderService.GetCustomer(c.Request.Context(), c.Param("phone"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) validateDiscount(c *gin.Context) {
	var req service.ValidateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, apperrors.Validation("invalid request body: %v", err))
		return
	}

	resp, err := h.orderService.ValidateDiscount(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getVariantStock(c *gin.Context) {
	variantID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || variantID <= 0 {
		h.writeError(c, apperrors.Validation("invalid variant ID"))
		return
	}

	levels, err := h.stock.Levels(c.Request.Context(), variantID)
	if err != nil {
		h.writeError(c, apperrors.Persistence("read stock", err))
		return
	}
	if len(levels) == 0 {
		h.writeError(c, apperrors.NotFound("variant %d has no stock rows", variantID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"variantId": variantID, "pools": levels})
}

// statusFor maps an error kind onto an HTTP status
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation, apperrors.KindDiscountRejected:
		return http.StatusBadRequest
	case apperrors.KindInsufficientStock, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": {"kind", "message", ...}}. Server
// faults are logged and their cause is not exposed.
func (h *Handler) writeError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	body := gin.H{"kind": kind}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body["message"] = appErr.Message
		if appErr.Reason != "" {
			body["reason"] = appErr.Reason
		}
		if appErr.VariantID != 0 {
			body["variantId"] = appErr.VariantID
			body["pool"] = appErr.Pool
		}
	}

	if !apperrors.IsClientError(err) {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		body["message"] = "internal server error"
	}

	c.JSON(statusFor(kind), gin.H{"error": body})
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
