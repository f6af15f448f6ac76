package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hireloop/ats-gateway/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Session   SessionConfig
	OIDC      OIDCConfig
	Bearer    BearerConfig
	Gate      GateConfig
	Tenants   TenantConfig
	Files     FilesConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// Production reports whether the server runs with production cookie settings.
func (s ServerConfig) Production() bool {
	return strings.EqualFold(s.Environment, "production")
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

type SessionConfig struct {
	Store     string // redis | mongo | memory
	Secret    string
	CrossSite bool
	MaxAge    time.Duration
}

type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	SuccessURL   string
}

// Enabled reports whether enough is configured to start a login.
func (o OIDCConfig) Enabled() bool {
	return o.Issuer != "" && o.ClientID != ""
}

type BearerConfig struct {
	Audience          string
	IssuerTenant      string
	RequiredRole      string
	JWKSURL           string
	JWKSMaxKeys       int
	JWKSMaxAge        time.Duration
	JWKSFetchesPerMin int
}

type GateConfig struct {
	RequireBearerForPublicSubmit bool
	Debug                        bool
}

type TenantConfig struct {
	Known                   []string
	Default                 string
	ClientCredentialsTenant string
	DatabaseURLs            map[string]string
	TraceQueries            bool
}

type FilesConfig struct {
	Root           string
	Backend        string // fs | minio
	SigningSecret  string
	SecretFallback bool
	DefaultTTL     time.Duration
	MaxTTL         time.Duration
	MaxUploadBytes int64
	MinIO          MinIOConfig
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type RateLimitConfig struct {
	Enabled  bool
	UseRedis bool
	Rate     float64
	Burst    int
	Window   time.Duration
}

// LoadConfig loads configuration from environment variables and .env file.
// Nothing is required at startup; features with missing settings fail per request.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MONGODB_DATABASE", "ats")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("SESSION_STORE", "memory")
	viper.SetDefault("SESSION_MAX_AGE_MINUTES", 240)
	viper.SetDefault("LOGIN_SUCCESS_URL", "/")
	viper.SetDefault("BEARER_JWKS_MAX_KEYS", 16)
	viper.SetDefault("BEARER_JWKS_MAX_AGE_MINUTES", 600)
	viper.SetDefault("BEARER_JWKS_FETCHES_PER_MINUTE", 10)
	viper.SetDefault("TENANTS", "ats")
	viper.SetDefault("CLIENT_CREDENTIALS_TENANT", "ats")
	viper.SetDefault("FILES_ROOT", "./data/files")
	viper.SetDefault("STORAGE_BACKEND", "fs")
	viper.SetDefault("FILES_SIGN_DEFAULT_TTL", 900)
	viper.SetDefault("FILES_SIGN_MAX_TTL", 86400)
	viper.SetDefault("FILES_MAX_UPLOAD_MB", 25)
	viper.SetDefault("MINIO_BUCKET", "ats-files")
	viper.SetDefault("RATE_LIMIT_RATE", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	tenants := splitList(viper.GetString("TENANTS"))
	def := viper.GetString("DEFAULT_TENANT")
	if def == "" && len(tenants) > 0 {
		def = tenants[0]
	}

	sessionSecret := os.Getenv("SESSION_SECRET")
	signingSecret := os.Getenv("FILE_SIGNING_SECRET")
	fallback := false
	if signingSecret == "" && sessionSecret != "" {
		signingSecret = sessionSecret
		fallback = true
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			LogLevel:     viper.GetString("LOG_LEVEL"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigins:  splitList(viper.GetString("CORS_ORIGINS")),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		Session: SessionConfig{
			Store:     strings.ToLower(viper.GetString("SESSION_STORE")),
			Secret:    sessionSecret,
			CrossSite: viper.GetBool("SESSION_CROSS_SITE"),
			MaxAge:    time.Duration(viper.GetInt("SESSION_MAX_AGE_MINUTES")) * time.Minute,
		},
		OIDC: OIDCConfig{
			Issuer:       viper.GetString("OIDC_ISSUER"),
			ClientID:     viper.GetString("OIDC_CLIENT_ID"),
			ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
			RedirectURL:  viper.GetString("OIDC_REDIRECT_URL"),
			SuccessURL:   viper.GetString("LOGIN_SUCCESS_URL"),
		},
		Bearer: BearerConfig{
			Audience:          viper.GetString("BEARER_AUDIENCE"),
			IssuerTenant:      viper.GetString("BEARER_ISSUER_TENANT"),
			RequiredRole:      viper.GetString("BEARER_REQUIRED_ROLE"),
			JWKSURL:           viper.GetString("BEARER_JWKS_URL"),
			JWKSMaxKeys:       viper.GetInt("BEARER_JWKS_MAX_KEYS"),
			JWKSMaxAge:        time.Duration(viper.GetInt("BEARER_JWKS_MAX_AGE_MINUTES")) * time.Minute,
			JWKSFetchesPerMin: viper.GetInt("BEARER_JWKS_FETCHES_PER_MINUTE"),
		},
		Gate: GateConfig{
			RequireBearerForPublicSubmit: viper.GetBool("REQUIRE_BEARER_FOR_PUBLIC_SUBMIT"),
			Debug:                        viper.GetBool("AUTH_DEBUG"),
		},
		Tenants: TenantConfig{
			Known:                   tenants,
			Default:                 def,
			ClientCredentialsTenant: viper.GetString("CLIENT_CREDENTIALS_TENANT"),
			DatabaseURLs:            parseDSNMap(viper.GetString("TENANT_DATABASE_URLS")),
			TraceQueries:            viper.GetBool("TENANT_TRACE_QUERIES"),
		},
		Files: FilesConfig{
			Root:           viper.GetString("FILES_ROOT"),
			Backend:        strings.ToLower(viper.GetString("STORAGE_BACKEND")),
			SigningSecret:  signingSecret,
			SecretFallback: fallback,
			DefaultTTL:     time.Duration(viper.GetInt("FILES_SIGN_DEFAULT_TTL")) * time.Second,
			MaxTTL:         time.Duration(viper.GetInt("FILES_SIGN_MAX_TTL")) * time.Second,
			MaxUploadBytes: viper.GetInt64("FILES_MAX_UPLOAD_MB") << 20,
			MinIO: MinIOConfig{
				Endpoint:  viper.GetString("MINIO_ENDPOINT"),
				AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
				SecretKey: os.Getenv("MINIO_SECRET_KEY"),
				UseSSL:    viper.GetBool("MINIO_USE_SSL"),
				Bucket:    viper.GetString("MINIO_BUCKET"),
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis: viper.GetBool("RATE_LIMIT_USE_REDIS"),
			Rate:     viper.GetFloat64("RATE_LIMIT_RATE"),
			Burst:    viper.GetInt("RATE_LIMIT_BURST"),
			Window:   time.Duration(viper.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		},
	}

	// Basic validation
	if cfg.Session.Secret == "" {
		logger.Warn("SESSION_SECRET is not set; session cookies cannot be issued")
	}
	if cfg.Files.SecretFallback {
		logger.Warn("FILE_SIGNING_SECRET is not set; signed URLs fall back to SESSION_SECRET")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDSNMap reads "tenant=dsn,tenant2=dsn2".
func parseDSNMap(s string) map[string]string {
	out := map[string]string{}
	for _, p := range splitList(s) {
		id, dsn, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		id, dsn = strings.TrimSpace(id), strings.TrimSpace(dsn)
		if id != "" && dsn != "" {
			out[id] = dsn
		}
	}
	return out
}
