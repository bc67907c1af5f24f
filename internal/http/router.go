package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/farmhub/auctionhub/internal/activity"
	"github.com/farmhub/auctionhub/internal/auth"
	"github.com/farmhub/auctionhub/internal/cache"
	"github.com/farmhub/auctionhub/internal/config"
	"github.com/farmhub/auctionhub/internal/files"
	"github.com/farmhub/auctionhub/internal/http/handlers"
	"github.com/farmhub/auctionhub/internal/http/middlewares"
	"github.com/farmhub/auctionhub/internal/observability"
	"github.com/farmhub/auctionhub/internal/queue/redisclient"
	"github.com/farmhub/auctionhub/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/prometheus/client_golang/prometheus"
)

type Deps struct {
	Cfg   config.Config
	Log   *slog.Logger
	Pool  *pgxpool.Pool
	Prom  *observability.Prom
	Redis *redisclient.Client
	// PromRegistry serves /metrics. Defaults to prometheus.DefaultGatherer.
	PromRegistry prometheus.Gatherer
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(otelgin.Middleware("auctionhub-api"))
	r.Use(d.Prom.GinHandleMiddleware())
	r.Use(middlewares.CORSMiddleware(d.Cfg.CORSOrigins))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) // 1 MiB

	// health

	ping := func(ctx context.Context) error {
		if d.Pool == nil {
			return nil
		}
		return d.Pool.Ping(ctx)
	}

	healthHandler := handlers.NewHealthHandler(ping)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)

	gatherer := d.PromRegistry
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// wire up repositories

	auctionsRepo := postgres.NewAuctionsRepo(d.Pool, d.Prom)
	jobsRepo := postgres.NewJobsRepo(d.Pool, d.Prom)
	activityRepo := postgres.NewActivityRepo(d.Pool, d.Prom)
	usersRepo := postgres.NewUsersRepo(d.Pool, d.Prom)

	audit := activity.NewLogger(activityRepo, d.Log)

	jwtManager := auth.NewManager(d.Cfg.JWTSecret, d.Cfg.AccessTTL)
	authMw := middlewares.NewAuthMiddleware(jwtManager)

	var nudge handlers.QueueNudger
	if d.Redis != nil {
		nudge = d.Redis
	}

	imageStore := files.NewLogStore(d.Log)

	statsCache := cache.New(30 * time.Second)

	// wire up handlers

	auctionsHandler := handlers.NewAuctionsHandler(auctionsRepo, jobsRepo, nudge, imageStore, audit, d.Prom)
	registrationsHandler := handlers.NewRegistrationsHandler(auctionsRepo, jobsRepo, nudge, audit, d.Prom)
	statsHandler := handlers.NewStatsHandler(auctionsRepo, activityRepo, statsCache)
	authHandler := handlers.NewAuthHandler(usersRepo, jwtManager)

	// rate limits: tighter for anonymous writes, generous for reads

	readLimiter := middlewares.NewRateLimiter(120, time.Minute)
	writeLimiter := middlewares.NewRateLimiter(10, time.Minute)
	loginLimiter := middlewares.NewRateLimiter(5, time.Minute)

	// public routes

	r.POST("/auth/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)

	public := r.Group("/", readLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		public.GET("/auctions", auctionsHandler.ListAuctions)
		public.GET("/auctions/upcoming", auctionsHandler.UpcomingAuctions)
		public.GET("/auctions/category/:category", auctionsHandler.AuctionsByCategory)
		public.GET("/auctions/:id", auctionsHandler.GetAuctionByID)
	}

	r.POST("/auctions/:id/registrations",
		writeLimiter.RateLimiterMiddleware(middlewares.KeyByIP),
		registrationsHandler.Register,
	)
	r.POST("/auctions/:id/interest",
		writeLimiter.RateLimiterMiddleware(middlewares.KeyByIP),
		auctionsHandler.RegisterInterest,
	)

	// admin routes

	admin := r.Group("/",
		authMw.RequireAuth(),
		authMw.RequireRole("admin"),
		readLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP),
	)
	{
		admin.POST("/auctions", auctionsHandler.CreateAuction)
		admin.PUT("/auctions/:id", auctionsHandler.UpdateAuction)
		admin.DELETE("/auctions/:id", auctionsHandler.DeleteAuction)
		admin.POST("/auctions/:id/cancel", auctionsHandler.CancelAuction)
		admin.POST("/auctions/:id/results", auctionsHandler.RecordResults)

		admin.GET("/registrations", registrationsHandler.ListRegistrations)
		admin.GET("/registrations/export", registrationsHandler.ExportRegistrations)
		admin.POST("/registrations/:registrationId/approve", registrationsHandler.Approve)
		admin.POST("/registrations/:registrationId/reject", registrationsHandler.Reject)

		admin.GET("/stats", statsHandler.Stats)
		admin.GET("/stats/performance", statsHandler.Performance)
		admin.GET("/activity", statsHandler.RecentActivity)
	}

	return r
}
