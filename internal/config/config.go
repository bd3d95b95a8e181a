package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/seguralta/portal/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Identity  IdentityConfig
	Webhook   WebhookConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Routes    RoutesConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// IsProduction reports whether the server runs with production defaults
// (secure cookies, mandatory MongoDB).
func (s ServerConfig) IsProduction() bool {
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
	return r.Host + ":" + r.Port
}

// IdentityConfig selects and configures the identity provider.
// Provider is one of "firebase", "clerk" or "oidc".
type IdentityConfig struct {
	Provider            string
	Issuer              string
	ClientID            string
	JWKSURL             string // skips discovery when set
	FirebaseProjectID   string
	FirebaseCredentials string
	ClerkSecretKey      string
	ClerkAPIURL         string
	AllowInsecureToken  bool
}

type WebhookConfig struct {
	SigningSecret string
}

type JWTConfig struct {
	Secret           string
	MutationTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// StorageConfig configures the MinIO bucket holding contract documents.
type StorageConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PresignTTL time.Duration
}

// RoutesConfig names the paths the route gate works with.
type RoutesConfig struct {
	SignIn           string
	Onboarding       string
	DashboardRoot    string
	DashboardDefault string
	Public           []string
}

// DefaultPublicRoutes are the route patterns reachable without a session.
var DefaultPublicRoutes = []string{
	"/",
	"/sign-in(.*)",
	"/sign-up(.*)",
	"/simulacao(.*)",
	"/cotacao(.*)",
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "3000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "portal")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("IDENTITY_PROVIDER", "oidc")
	v.SetDefault("CLERK_API_URL", "https://api.clerk.com")
	v.SetDefault("JWT_MUTATION_TOKEN_TTL", 60)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("MINIO_BUCKET", "contratos")
	v.SetDefault("MINIO_PRESIGN_TTL", 15)
	v.SetDefault("ROUTE_SIGN_IN", "/sign-in")
	v.SetDefault("ROUTE_ONBOARDING", "/onboarding")
	v.SetDefault("ROUTE_DASHBOARD_ROOT", "/dashboard")
	v.SetDefault("ROUTE_DASHBOARD_DEFAULT", "/dashboard/contratos")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Identity: IdentityConfig{
			Provider:            strings.ToLower(v.GetString("IDENTITY_PROVIDER")),
			Issuer:              v.GetString("IDENTITY_ISSUER"),
			ClientID:            v.GetString("IDENTITY_CLIENT_ID"),
			JWKSURL:             v.GetString("IDENTITY_JWKS_URL"),
			FirebaseProjectID:   v.GetString("FIREBASE_PROJECT_ID"),
			FirebaseCredentials: os.Getenv("FIREBASE_CREDENTIALS"),
			ClerkSecretKey:      os.Getenv("CLERK_SECRET_KEY"),
			ClerkAPIURL:         v.GetString("CLERK_API_URL"),
			AllowInsecureToken:  v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		Webhook: WebhookConfig{
			SigningSecret: os.Getenv("WEBHOOK_SIGNING_SECRET"),
		},
		JWT: JWTConfig{
			Secret:           os.Getenv("JWT_SECRET"),
			MutationTokenTTL: time.Duration(v.GetInt("JWT_MUTATION_TOKEN_TTL")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Storage: StorageConfig{
			Endpoint:   v.GetString("MINIO_ENDPOINT"),
			AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:  os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:     v.GetBool("MINIO_USE_SSL"),
			Bucket:     v.GetString("MINIO_BUCKET"),
			PresignTTL: time.Duration(v.GetInt("MINIO_PRESIGN_TTL")) * time.Minute,
		},
		Routes: RoutesConfig{
			SignIn:           v.GetString("ROUTE_SIGN_IN"),
			Onboarding:       v.GetString("ROUTE_ONBOARDING"),
			DashboardRoot:    v.GetString("ROUTE_DASHBOARD_ROOT"),
			DashboardDefault: v.GetString("ROUTE_DASHBOARD_DEFAULT"),
			Public:           append([]string(nil), DefaultPublicRoutes...),
		},
	}
	if extra := strings.TrimSpace(v.GetString("ROUTE_PUBLIC_EXTRA")); extra != "" {
		for _, p := range strings.Split(extra, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Routes.Public = append(cfg.Routes.Public, p)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Identity.Provider {
	case "firebase", "clerk", "oidc":
	default:
		return fmt.Errorf("unsupported IDENTITY_PROVIDER %q", c.Identity.Provider)
	}
	if c.Server.IsProduction() {
		if c.MongoDB.URI == "" {
			return fmt.Errorf("environment variable MONGODB_URI is required in production")
		}
		if c.JWT.Secret == "" {
			return fmt.Errorf("environment variable JWT_SECRET is required in production")
		}
		if c.Webhook.SigningSecret == "" {
			return fmt.Errorf("environment variable WEBHOOK_SIGNING_SECRET is required in production")
		}
		if c.Identity.AllowInsecureToken {
			return fmt.Errorf("ALLOW_INSECURE_TOKEN cannot be enabled in production")
		}
	}
	if c.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is not set; set a secure value in production")
	}
	if c.JWT.MutationTokenTTL <= 0 {
		c.JWT.MutationTokenTTL = time.Minute
	}
	return nil
}
