// Package server exposes the billing core over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/classbill/classbill/internal/analytics/domain"
	"github.com/classbill/classbill/internal/authorization"
	"github.com/classbill/classbill/internal/config"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	paymentdomain "github.com/classbill/classbill/internal/payment/domain"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	promodomain "github.com/classbill/classbill/internal/promo/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	usagedomain "github.com/classbill/classbill/internal/usage/domain"
	"github.com/classbill/classbill/internal/usage/liveevents"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
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

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	authzSvc        authorization.Service
	catalog         plandomain.Catalog
	organizationSvc organizationdomain.Service
	subscriptionSvc subscriptiondomain.Service
	usageSvc        usagedomain.Service
	transactionSvc  transactiondomain.Service
	paymentSvc      paymentdomain.Service
	promoSvc        promodomain.Service
	analyticsSvc    analyticsdomain.Service
	liveUsageEvents *liveevents.Hub
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	AuthzSvc        authorization.Service
	Catalog         plandomain.Catalog
	OrganizationSvc organizationdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	UsageSvc        usagedomain.Service
	TransactionSvc  transactiondomain.Service
	PaymentSvc      paymentdomain.Service
	PromoSvc        promodomain.Service
	AnalyticsSvc    analyticsdomain.Service
	LiveUsageEvents *liveevents.Hub `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		log:    p.Log.Named("http"),
		genID:  p.GenID,

		authzSvc:        p.AuthzSvc,
		catalog:         p.Catalog,
		organizationSvc: p.OrganizationSvc,
		subscriptionSvc: p.SubscriptionSvc,
		usageSvc:        p.UsageSvc,
		transactionSvc:  p.TransactionSvc,
		paymentSvc:      p.PaymentSvc,
		promoSvc:        p.PromoSvc,
		analyticsSvc:    p.AnalyticsSvc,
		liveUsageEvents: p.LiveUsageEvents,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/plans", s.ListPlans)
	v1.GET("/plans/:tier", s.GetPlan)

	v1.POST("/orgs", s.CreateOrganization)
	v1.POST("/payments/complete", s.CompletePlanChange)
	v1.GET("/analytics/summary", s.AnalyticsSummary)

	v1.POST("/promo-codes", s.CreatePromoCode)
	v1.GET("/promo-codes/:code", s.GetPromoCode)

	org := v1.Group("/orgs/:org_id", s.OrgContext(), s.ActorContext())
	org.GET("", s.GetOrganization)
	org.POST("/members", s.AddMember)
	org.DELETE("/members/:member_id", s.RemoveMember)

	org.GET("/subscription", s.GetSubscription)
	org.POST("/subscription/cancel", s.CancelSubscription)
	org.POST("/subscription/downgrade", s.DowngradeSubscription)
	org.POST("/plan-change", s.PreparePlanChange)

	org.POST("/members/:member_id/usage", s.MutateUsage)
	org.GET("/usage", s.UsageStats)
	org.GET("/usage/events", s.StreamUsageEvents)

	org.GET("/transactions", s.ListTransactions)
	org.GET("/events", s.ListLifecycleEvents)
}
