// Package server exposes the posting engine over HTTP. Tenancy comes from
// the X-Tenant-ID header; every route below /api requires it.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/farmbooks/farmbooks/internal/config"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	postingdomain "github.com/farmbooks/farmbooks/internal/posting/domain"
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
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	genID      *snowflake.Node
	eventSvc   eventdomain.Service
	postingSvc postingdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	EventSvc   eventdomain.Service
	PostingSvc postingdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		genID:      p.GenID,
		eventSvc:   p.EventSvc,
		postingSvc: p.PostingSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.TenantRequired())

	// -------- Events --------
	api.POST("/events", s.CreateEvent)
	api.GET("/events", s.ListEvents)
	api.GET("/events/:id", s.GetEventByID)
	api.POST("/events/:id/process", s.ProcessEvent)
	api.POST("/events/:id/reverse", s.ReverseEvent)
	api.POST("/events/:id/retry", s.RetryEvent)
	api.POST("/events/drain", s.DrainEvents)

	// -------- Ledger --------
	api.GET("/ledger/transactions", s.ListLedgerTransactions)
	api.GET("/ledger/transactions/:id", s.GetLedgerTransactionByID)

	// -------- Inventory --------
	api.GET("/inventory/balances", s.ListInventoryBalances)
	api.GET("/inventory/movements", s.ListInventoryMovements)
}
