package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"payment-gateway/internal/service"
	"payment-gateway/internal/util"
	"payment-gateway/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups what the HTTP surface dispatches to
type Services struct {
	Orders        *service.OrderService
	Customers     *service.CustomerResolver
	Subscriptions *service.SubscriptionService
	Verifier      *service.PaymentVerifier
	Webhooks      *webhook.Ingestor
}

// Handler contains HTTP handlers
type Handler struct {
	svc       Services
	readiness []Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. readiness lists the dependencies
// /ready pings.
func NewHandler(svc Services, readiness ...Pinger) *Handler {
	return &Handler{
		svc:       svc,
		readiness: readiness,
		logger:    util.GetLogger(),
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

	// Raw body: the signature covers the exact bytes received.
	router.POST("/webhook/razorpay", h.receiveWebhook)

	rzp := router.Group("/api/razorpay")
	{
		rzp.POST("/orders", h.createOrder)
		rzp.POST("/verify-payment", h.verifyPayment)
		rzp.POST("/customer", h.resolveCustomer)
		rzp.POST("/plan", h.createPlan)
		rzp.POST("/subscription", h.createSubscription)
		rzp.POST("/verify-subscription-payment", h.verifySubscriptionPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck fails while any backing dependency is unreachable
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.Orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var notice service.OrderPaymentNotice
	if !h.bind(c, &notice) {
		return
	}

	if err := h.svc.Verifier.VerifyOrderPayment(c.Request.Context(), &notice); err != nil {
		h.respondError(c, err, "Invalid signature")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment verified successfully",
	})
}

func (h *Handler) resolveCustomer(c *gin.Context) {
	var id service.CustomerIdentity
	if !h.bind(c, &id) {
		return
	}

	res, err := h.svc.Customers.Resolve(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	message := "Existing customer returned"
	if res.Created {
		message = "New customer created"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"customer": res.Customer,
		"message":  message,
	})
}

func (h *Handler) createPlan(c *gin.Context) {
	var req service.CreatePlanRequest
	if !h.bind(c, &req) {
		return
	}

	plan, err := h.svc.Subscriptions.CreatePlan(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "plan": plan})
}

func (h *Handler) createSubscription(c *gin.Context) {
	var req service.CreateSubscriptionRequest
	if !h.bind(c, &req) {
		return
	}

	sub, err := h.svc.Subscriptions.CreateSubscription(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "subscription": sub})
}

func (h *Handler) verifySubscriptionPayment(c *gin.Context) {
	var notice service.SubscriptionPaymentNotice
	if !h.bind(c, &notice) {
		return
	}

	out, err := h.svc.Verifier.VerifySubscriptionPayment(c.Request.Context(), &notice)
	if err != nil {
		h.respondError(c, err, "Invalid payment signature")
		return
	}

	body := gin.H{
		"success": true,
		"message": "Subscription payment verified successfully",
	}
	// signature-only verification has no live payment to show
	if out.Payment != nil {
		body["payment"] = out.Payment
	} else {
		body["status"] = out.Status
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) receiveWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Unreadable request body"})
		return
	}

	res, err := h.svc.Webhooks.Ingest(c.Request.Context(), webhook.Delivery{
		Body:      body,
		Signature: c.GetHeader(webhook.SignatureHeader),
		EventID:   c.GetHeader(webhook.EventIDHeader),
	})
	if err != nil {
		h.respondError(c, err, "Invalid signature")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"event":     res.Event,
		"duplicate": res.Duplicate,
	})
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

// requestLogger replaces gin.Logger with structured access logs
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
