package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/mysqlstore"
	"github.com/alexedwards/scs/postgresstore"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

const (
	SessionUserIDKey = "user_id"
	SessionCookie    = "galeria_session"
)

// SessionOptions selects and tunes the session store.
type SessionOptions struct {
	Store    string // "db", "redis", or "memory"
	DB       *sqlx.DB
	Driver   string // DB driver: "sqlite3", "postgres", or "mysql"
	Redis    *redis.Client
	Lifetime time.Duration
	Secure   bool
}

// NewSessionManager creates an SCS session manager. The "db" store uses the
// application database with the adapter matching the driver; "memory" keeps
// sessions in process and is meant for tests and single-instance demos.
func NewSessionManager(opts SessionOptions) (*scs.SessionManager, error) {
	sm := scs.New()
	switch opts.Store {
	case "db":
		if opts.DB == nil {
			return nil, fmt.Errorf("db session store requires a database")
		}
		switch opts.Driver {
		case "mysql":
			sm.Store = mysqlstore.New(opts.DB.DB)
		case "postgres":
			sm.Store = postgresstore.New(opts.DB.DB)
		default: // sqlite3
			sm.Store = sqlite3store.New(opts.DB.DB)
		}
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis session store requires a redis client")
		}
		sm.Store = goredisstore.New(opts.Redis)
	case "memory", "":
		// scs defaults to its in-memory store.
	default:
		return nil, fmt.Errorf("unknown session store %q", opts.Store)
	}

	if opts.Lifetime > 0 {
		sm.Lifetime = opts.Lifetime
	}
	sm.Cookie.Name = SessionCookie
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = opts.Secure
	sm.Cookie.SameSite = http.SameSiteLaxMode
	return sm, nil
}
