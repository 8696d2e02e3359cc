package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/astrotv/astrotv-server/internal/auth"
	"github.com/astrotv/astrotv-server/internal/config"
	"github.com/astrotv/astrotv-server/internal/core"
	"github.com/astrotv/astrotv-server/internal/metrics"
	"github.com/astrotv/astrotv-server/internal/service/notifications"
	"github.com/astrotv/astrotv-server/internal/service/payments"
	"github.com/astrotv/astrotv-server/internal/service/points"
	"github.com/astrotv/astrotv-server/internal/store"
)

// Deps are the components served over HTTP.
type Deps struct {
	Hub           *core.Hub
	Store         store.Store
	Verifier      auth.Verifier
	Points        *points.Service
	Payments      *payments.Service
	Notifications *notifications.Service
	Metrics       *metrics.Metrics
}

// NewServer builds an HTTP server with the REST API and the websocket endpoint.
func NewServer(cfg *config.Config, deps Deps, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, deps, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler mounts the websocket endpoint next to the gin router. The
// upgrade stays outside gin, whose writer holds the 101 status line back
// past the hijack.
func NewHandler(cfg *config.Config, deps Deps, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("GET /ws", NewWSHandler(deps.Hub, deps.Metrics, cfg.MaxMessageBytes, cfg.SendQueueSize, logger))
	mux.Handle("/", NewRouter(cfg, deps, logger))
	return mux
}

// NewRouter registers the REST routes on a gin engine.
func NewRouter(cfg *config.Config, deps Deps, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := NewAPIHandlers(deps, logger)
	pay := NewPaymentHandlers(deps.Payments, cfg.PaymentWebhookSecret, logger)

	public := router.Group("/api")
	public.GET("/viewer/viewer-count/:streamId", api.ViewerCount)
	public.POST("/payment/webhook", pay.Webhook)

	protected := router.Group("/api")
	protected.Use(AuthMiddleware(deps.Verifier, logger))
	{
		protected.POST("/chat/send", api.SendChat)
		protected.DELETE("/chat/messages/:id", api.DeleteMessage)
		protected.POST("/gifts/send", api.SendGift)
		protected.POST("/points/earn", api.EarnPoints)
		protected.GET("/notifications", api.ListNotifications)
		protected.POST("/payment/checkout", pay.Checkout)
		protected.POST("/payment/settle", pay.Settle)
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
