package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/countercore/tally/internal/audit"
	auditdomain "github.com/countercore/tally/internal/audit/domain"
	"github.com/countercore/tally/internal/checkout"
	checkoutdomain "github.com/countercore/tally/internal/checkout/domain"
	"github.com/countercore/tally/internal/config"
	"github.com/countercore/tally/internal/discount"
	discountdomain "github.com/countercore/tally/internal/discount/domain"
	"github.com/countercore/tally/internal/invoice"
	invoicedomain "github.com/countercore/tally/internal/invoice/domain"
	"github.com/countercore/tally/internal/loyalty"
	loyaltydomain "github.com/countercore/tally/internal/loyalty/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module assembles the HTTP surface and every domain it serves.
var Module = fx.Module("server",
	audit.Module,
	discount.Module,
	loyalty.Module,
	invoice.Module,
	checkout.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	checkoutSvc checkoutdomain.Service
	discountSvc discountdomain.Service
	loyaltySvc  loyaltydomain.Service
	invoiceSvc  invoicedomain.Service
	auditSvc    auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	CheckoutSvc checkoutdomain.Service
	DiscountSvc discountdomain.Service
	LoyaltySvc  loyaltydomain.Service
	InvoiceSvc  invoicedomain.Service
	AuditSvc    auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		checkoutSvc: p.CheckoutSvc,
		discountSvc: p.DiscountSvc,
		loyaltySvc:  p.LoyaltySvc,
		invoiceSvc:  p.InvoiceSvc,
		auditSvc:    p.AuditSvc,
	}
}

func registerRoutes(s *Server) {
	v1 := s.engine.Group("/v1")

	checkouts := v1.Group("/checkouts")
	checkouts.POST("", s.BeginCheckout)
	checkouts.GET("/:id", s.GetCheckout)
	checkouts.POST("/:id/method", s.SelectMethod)
	checkouts.PUT("/:id/payment", s.UpdatePayment)
	checkouts.POST("/:id/confirm", s.ConfirmCheckout)
	checkouts.POST("/:id/cancel", s.CancelCheckout)

	discounts := v1.Group("/discounts")
	discounts.POST("/evaluate", s.EvaluateDiscount)
	discounts.POST("/commit", s.CommitDiscount)
	discounts.POST("/rules", s.CreateDiscountRule)
	discounts.GET("/rules", s.ListDiscountRules)
	discounts.GET("/rules/:code", s.GetDiscountRule)
	discounts.GET("/policy", s.GetDiscountPolicy)
	discounts.PUT("/policy", s.UpdateDiscountPolicy)

	loyalty := v1.Group("/loyalty")
	loyalty.GET("/settings", s.GetLoyaltySettings)
	loyalty.PUT("/settings", s.UpdateLoyaltySettings)
	loyalty.GET("/:customer_id", s.GetLoyaltyBalance)
	loyalty.POST("/:customer_id/accrue", s.AccrueLoyalty)
	loyalty.POST("/:customer_id/redeem", s.RedeemLoyalty)
	loyalty.POST("/:customer_id/reset", s.ResetLoyalty)

	v1.GET("/invoices/:number", s.GetInvoice)
	v1.GET("/audit-logs", s.ListAuditLogs)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
