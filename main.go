package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hireloop/ats-gateway/handlers"
	"github.com/hireloop/ats-gateway/internal/bearer"
	"github.com/hireloop/ats-gateway/internal/config"
	"github.com/hireloop/ats-gateway/internal/database"
	"github.com/hireloop/ats-gateway/internal/oidc"
	"github.com/hireloop/ats-gateway/internal/sessions"
	"github.com/hireloop/ats-gateway/internal/signedurl"
	"github.com/hireloop/ats-gateway/internal/storage"
	"github.com/hireloop/ats-gateway/internal/tenant"
	"github.com/hireloop/ats-gateway/internal/users"
	"github.com/hireloop/ats-gateway/pkg/logger"
	"github.com/hireloop/ats-gateway/pkg/metrics"
	"github.com/hireloop/ats-gateway/pkg/middleware"
)

var errNotConfigured = errors.New("not_configured")

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)
	if cfg.Server.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Infof("config loaded: oidc=%v bearer=%v mongo=%v redis=%v tenants=%v",
		cfg.OIDC.Enabled(), cfg.Bearer.Audience != "", cfg.MongoDB.URI != "", cfg.Redis.Addr() != "", cfg.Tenants.Known)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Redis early so sessions and the rate limiter can use it
	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
		} else {
			logger.Infof("Connected to Redis: %s", addr)
		}
		defer rdb.Close()
	}

	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		mongoClient, err = database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("continuing without MongoDB: %v", err)
			mongoClient = nil
		} else {
			defer func() { _ = mongoClient.Disconnect(context.Background()) }()
		}
	}

	userSvc := users.NewService(nil)
	if mongoClient != nil {
		userSvc = users.NewService(users.NewMongoUserRepository(mongoClient.Database(cfg.MongoDB.Database).Collection("users")))
	}
	sessionsSvc, sessionStore := newSessionService(ctx, cfg, rdb, mongoClient)
	cookie := sessions.CookieConfig{
		Secret:    cfg.Session.Secret,
		Secure:    cfg.Server.Production(),
		CrossSite: cfg.Session.CrossSite,
	}

	resolver := tenant.NewResolver(cfg.Tenants.Known, cfg.Tenants.Default)
	registry, err := tenant.NewRegistry(ctx, cfg.Tenants.DatabaseURLs, cfg.Tenants.TraceQueries)
	if err != nil {
		logger.Warnf("tenant databases disabled: %v", err)
		registry = nil
	}
	defer registry.Close()

	jwksURL := cfg.Bearer.JWKSURL
	if jwksURL == "" {
		jwksURL = bearer.DefaultJWKSURL(cfg.Bearer.IssuerTenant)
	}
	verifier := bearer.NewVerifier(bearer.Config{
		Audience:     cfg.Bearer.Audience,
		IssuerTenant: cfg.Bearer.IssuerTenant,
		RequiredRole: cfg.Bearer.RequiredRole,
	}, bearer.NewKeySet(bearer.KeySetConfig{
		URL:              jwksURL,
		MaxKeys:          cfg.Bearer.JWKSMaxKeys,
		MaxAge:           cfg.Bearer.JWKSMaxAge,
		FetchesPerMinute: cfg.Bearer.JWKSFetchesPerMin,
	}))
	gate := middleware.NewGate(middleware.GateConfig{
		PublicPrefixes:           middleware.DefaultPublicPrefixes,
		PublicReads:              middleware.DefaultPublicReads(),
		ServiceRoutes:            middleware.DefaultServiceRoutes(cfg.Tenants.ClientCredentialsTenant),
		ClientCredentialTenant:   cfg.Tenants.ClientCredentialsTenant,
		RequireBearerOnAnonymous: cfg.Gate.RequireBearerForPublicSubmit,
		Debug:                    cfg.Gate.Debug,
	}, verifier)

	store, err := storage.New(ctx, storage.Config{
		Backend: cfg.Files.Backend,
		Root:    cfg.Files.Root,
		MinIO: storage.MinIOConfig{
			Endpoint:  cfg.Files.MinIO.Endpoint,
			AccessKey: cfg.Files.MinIO.AccessKey,
			SecretKey: cfg.Files.MinIO.SecretKey,
			UseSSL:    cfg.Files.MinIO.UseSSL,
			Bucket:    cfg.Files.MinIO.Bucket,
		},
	})
	if err != nil {
		logger.Fatalf("failed to initialize file storage: %v", err)
	}
	var codec *signedurl.Codec
	if cfg.Files.SigningSecret != "" {
		codec, _ = signedurl.New(cfg.Files.SigningSecret)
	} else {
		logger.Warn("no file signing secret configured; signed URLs are disabled")
	}

	var provider handlers.LoginProvider
	if cfg.OIDC.Enabled() {
		provider = oidc.NewProvider(oidc.Config{
			Issuer:       cfg.OIDC.Issuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURL:  cfg.OIDC.RedirectURL,
		})
	} else {
		logger.Warn("OIDC issuer or client id missing; interactive login is unavailable")
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(),
		middleware.ErrorHandler(),
		middleware.CORS(cfg.Server.CORSOrigins, cfg.Server.Production()),
		middleware.TenantMiddleware(resolver, registry),
		middleware.SessionMiddleware(sessionsSvc, cookie),
		gate.Middleware(),
	)
	// Optional global rate limiter (per principal when authenticated, otherwise per IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.Rate, cfg.RateLimit.Burst, cfg.RateLimit.Window))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
		}
	}

	health := handlers.NewHealth().Require("sessions:"+sessionStore, func(context.Context) error {
		if cfg.Session.Secret == "" {
			return errNotConfigured
		}
		return nil
	})
	if rdb != nil {
		health.Require("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	if mongoClient != nil {
		health.Require("mongodb", func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) })
	}
	health.Report("oidc", func(context.Context) error {
		if !cfg.OIDC.Enabled() {
			return errNotConfigured
		}
		return nil
	})
	health.Report("bearer", func(context.Context) error {
		if cfg.Bearer.Audience == "" || cfg.Bearer.IssuerTenant == "" {
			return errNotConfigured
		}
		return nil
	})
	health.ReportMap(func(ctx context.Context) map[string]string {
		out := map[string]string{}
		for id, state := range registry.Ping(ctx) {
			out["db:"+id] = state
		}
		return out
	})
	health.Register(r)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterSwagger(r)
	handlers.NewAuthHandler(provider, userSvc, sessionsSvc, cookie, cfg.OIDC.SuccessURL).Register(r)
	handlers.NewFilesHandler(store, codec, cfg.Files.DefaultTTL, cfg.Files.MaxTTL, cfg.Files.MaxUploadBytes).Register(r)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting ats gateway on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// newSessionService picks the configured session store. Redis or Mongo is
// required when running more than one replica.
func newSessionService(ctx context.Context, cfg *config.Config, rdb *redis.Client, mc *mongo.Client) (*sessions.Service, string) {
	switch cfg.Session.Store {
	case "redis":
		if rdb != nil {
			return sessions.NewService(sessions.NewRedisRepository(rdb, ""), cfg.Session.MaxAge), "redis"
		}
		logger.Warn("SESSION_STORE=redis but Redis is not configured; using memory")
	case "mongo":
		if mc != nil {
			repo := sessions.NewMongoRepository(mc.Database(cfg.MongoDB.Database).Collection("sessions"))
			if err := repo.EnsureIndexes(ctx); err != nil {
				logger.Warnf("session TTL index: %v", err)
			}
			return sessions.NewService(repo, cfg.Session.MaxAge), "mongo"
		}
		logger.Warn("SESSION_STORE=mongo but MongoDB is unavailable; using memory")
	}
	return sessions.NewService(sessions.NewMemoryRepository(), cfg.Session.MaxAge), "memory"
}
