package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/railzwaylabs/tallybook/internal/config"
	"github.com/railzwaylabs/tallybook/internal/observability"
	paymentdomain "github.com/railzwaylabs/tallybook/internal/payment/domain"
	subscriptiondomain "github.com/railzwaylabs/tallybook/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
)

type Params struct {
	fx.In

	Config          config.Config
	Log             *zap.Logger
	DB              *gorm.DB
	Engine          *gin.Engine
	PaymentSvc      paymentdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Metrics         *observability.Metrics `optional:"true"`
}

type Server struct {
	cfg             config.Config
	log             *zap.Logger
	db              *gorm.DB
	engine          *gin.Engine
	paymentSvc      paymentdomain.Service
	subscriptionSvc subscriptiondomain.Service
	metrics         *observability.Metrics
}

func NewEngine(cfg config.Config) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:             p.Config,
		log:             p.Log.Named("http"),
		db:              p.DB,
		engine:          p.Engine,
		paymentSvc:      p.PaymentSvc,
		subscriptionSvc: p.SubscriptionSvc,
		metrics:         p.Metrics,
	}
}

// RegisterAPIRoutes installs the middleware chain and every route.
func (s *Server) RegisterAPIRoutes() {
	s.engine.Use(RequestID(), s.AccessLog(), s.RequestMetrics())

	s.engine.GET("/healthz", s.Health)
	if s.cfg.Observability.MetricsEnabled {
		s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := s.engine.Group("/api")

	payments := api.Group("/payments")
	payments.POST("", s.RegisterPayment)
	payments.GET("", s.ListPayments)
	payments.DELETE("", s.BulkDeletePayments)
	payments.GET("/:id", s.GetPayment)
	payments.PATCH("/:id", s.UpdatePaymentStatus)
	payments.DELETE("/:id", s.DeletePayment)

	subscriptions := api.Group("/subscriptions")
	subscriptions.POST("", s.CreateSubscription)
	subscriptions.GET("", s.ListSubscriptions)
	subscriptions.GET("/:id", s.GetSubscription)
	subscriptions.PATCH("/:id", s.UpdateSubscription)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunHTTP binds the listener on start and drains in-flight requests on stop.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			timeout := cfg.HTTP.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
