package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"securecheckout/internal/config"
	"securecheckout/internal/handler"
	"securecheckout/internal/metrics"
	"securecheckout/internal/middleware"
	"securecheckout/internal/payment"
	"securecheckout/internal/session"
)

// SandboxPath is where the built-in sandbox gateway accepts payer posts.
const SandboxPath = "/sandbox/silent/pay"

// Setup configures all routes for the Echo server. A nil sandbox disables the
// sandbox gateway route.
func Setup(
	e *echo.Echo,
	repos *handler.Repos,
	sessions session.Store,
	builder *payment.RequestBuilder,
	replies *payment.ReplyProcessor,
	checkout config.CheckoutConfig,
	sandbox http.Handler,
	logger *zap.Logger,
) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))

	checkoutHandler := handler.NewCheckoutHandler(repos, sessions, builder, replies, checkout, logger)
	withSession := middleware.Session(sessions, checkout.SessionCookie, checkout.SessionTTL, checkout.SecureCookie, logger)

	// Storefront API, called from the merchant's own pages.
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.CORS())
	apiGroup.Use(withSession)
	apiGroup.GET("/products", checkoutHandler.ListProducts)
	apiGroup.GET("/products/:id", checkoutHandler.GetProduct)
	apiGroup.GET("/basket", checkoutHandler.GetBasket)
	apiGroup.POST("/basket/add-product", checkoutHandler.AddProduct)

	// Gateway endpoints
	gatewayGroup := e.Group("/cybersource")
	gatewayGroup.Use(withSession)
	gatewayGroup.POST("/sign-auth-request", checkoutHandler.SignAuthRequest)
	gatewayGroup.POST("/reply", checkoutHandler.Reply)

	e.GET("/checkout/thank-you/", checkoutHandler.ThankYou, withSession)

	if sandbox != nil {
		e.POST(SandboxPath, echo.WrapHandler(sandbox))
	} else {
		logger.Info("Sandbox gateway route disabled")
	}

	e.GET("/metrics", func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4")
		metrics.WritePrometheus(c.Response())
		return nil
	})

	// Health check
	e.GET("/-/live", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
