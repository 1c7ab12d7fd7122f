package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultGalleryImages are the embedded carousel slides used when
// gallery.images is not configured.
var DefaultGalleryImages = []string{
	"/static/img/slide-1.svg",
	"/static/img/slide-2.svg",
	"/static/img/slide-3.svg",
}

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		Driver string
		DSN    string
	}
	Session struct {
		Store           string // "db", "redis", or "memory"
		Lifetime        time.Duration
		InsecureCookies bool
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	OIDC struct {
		Issuer       string
		ClientID     string
		ClientSecret string
		RedirectURL  string
	}
	Log struct {
		Level       string
		Development bool
	}
	RegistrationEnabled bool
	GalleryImages       []string
}

// OIDCEnabled reports whether single sign-on is configured.
func (c *Config) OIDCEnabled() bool {
	return c.OIDC.Issuer != ""
}

// Load reads config from .env, the environment (GALERIA_ prefix) and an
// optional galeria.yaml in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional .env file

	v := viper.New()
	v.SetEnvPrefix("GALERIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("galeria")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional config file

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.driver", "sqlite3")
	v.SetDefault("db.dsn", "galeria.db")
	v.SetDefault("session.store", "db")
	v.SetDefault("session.lifetime", "24h")
	v.SetDefault("session.insecure_cookies", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("registration.enabled", true)

	cfg := &Config{}
	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.DB.Driver = v.GetString("db.driver")
	cfg.DB.DSN = v.GetString("db.dsn")
	cfg.Session.Store = v.GetString("session.store")
	cfg.Session.InsecureCookies = v.GetBool("session.insecure_cookies")
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")
	cfg.OIDC.Issuer = v.GetString("oidc.issuer")
	cfg.OIDC.ClientID = v.GetString("oidc.client_id")
	cfg.OIDC.ClientSecret = v.GetString("oidc.client_secret")
	cfg.OIDC.RedirectURL = v.GetString("oidc.redirect_url")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Development = v.GetBool("log.development")
	cfg.RegistrationEnabled = v.GetBool("registration.enabled")
	cfg.GalleryImages = splitList(v.GetStringSlice("gallery.images"))
	if len(cfg.GalleryImages) == 0 {
		cfg.GalleryImages = DefaultGalleryImages
	}

	lifetime, err := time.ParseDuration(v.GetString("session.lifetime"))
	if err != nil {
		return nil, fmt.Errorf("invalid GALERIA_SESSION_LIFETIME: %w", err)
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("GALERIA_SESSION_LIFETIME must be positive, got %s", lifetime)
	}
	cfg.Session.Lifetime = lifetime

	switch cfg.DB.Driver {
	case "sqlite3", "mysql", "postgres":
	default:
		return nil, fmt.Errorf("GALERIA_DB_DRIVER must be sqlite3, mysql, or postgres, got %q", cfg.DB.Driver)
	}
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("GALERIA_DB_DSN is required")
	}

	switch cfg.Session.Store {
	case "db", "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("GALERIA_REDIS_ADDR is required when GALERIA_SESSION_STORE=redis")
		}
	default:
		return nil, fmt.Errorf("GALERIA_SESSION_STORE must be db, redis, or memory, got %q", cfg.Session.Store)
	}

	if cfg.OIDCEnabled() {
		if cfg.OIDC.ClientID == "" {
			return nil, fmt.Errorf("GALERIA_OIDC_CLIENT_ID is required when GALERIA_OIDC_ISSUER is set")
		}
		if cfg.OIDC.ClientSecret == "" {
			return nil, fmt.Errorf("GALERIA_OIDC_CLIENT_SECRET is required when GALERIA_OIDC_ISSUER is set")
		}
		if cfg.OIDC.RedirectURL == "" {
			return nil, fmt.Errorf("GALERIA_OIDC_REDIRECT_URL is required when GALERIA_OIDC_ISSUER is set")
		}
	}

	return cfg, nil
}

// splitList flattens comma-separated entries so GALERIA_GALLERY_IMAGES can
// be given as "a.png,b.png".
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
