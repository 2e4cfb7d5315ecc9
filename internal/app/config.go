package app

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string `env:"CHAT_HTTP_ADDR,default=0.0.0.0:5000"`
	LogLevel string `env:"CHAT_LOG_LEVEL,default=info"`

	ReadHeaderTimeout time.Duration `env:"CHAT_HTTP_READ_HEADER_TIMEOUT,default=5s"`
	ReadTimeout       time.Duration `env:"CHAT_HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout      time.Duration `env:"CHAT_HTTP_WRITE_TIMEOUT,default=15s"`
	IdleTimeout       time.Duration `env:"CHAT_HTTP_IDLE_TIMEOUT,default=60s"`
	MaxHeaderBytes    int           `env:"CHAT_HTTP_MAX_HEADER_BYTES,default=1048576"`

	// Persistence selection: Postgres when DatabaseURL is set, else Badger
	// when BadgerPath is set, else in-memory (dev).
	DatabaseURL string `env:"CHAT_DATABASE_URL"`
	DBSchema    string `env:"CHAT_DB_SCHEMA,default=chat"`
	DBMaxConns  int32  `env:"CHAT_DB_MAX_CONNS,default=10"`
	DBMinConns  int32  `env:"CHAT_DB_MIN_CONNS,default=0"`
	BadgerPath  string `env:"CHAT_BADGER_PATH"`

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool `env:"CHAT_READINESS_REQUIRE_DB,default=false"`

	// Websocket knobs.
	WSOriginRequired    bool          `env:"CHAT_WS_ORIGIN_REQUIRED,default=true"`
	WSAllowedOrigins    string        `env:"CHAT_WS_ALLOWED_ORIGINS,default=http://localhost,http://127.0.0.1"`
	WSDevInsecure       bool          `env:"CHAT_WS_DEV_INSECURE,default=false"`
	WSSendQueue         int           `env:"CHAT_WS_SEND_QUEUE,default=256"`
	WSWriteTimeout      time.Duration `env:"CHAT_WS_WRITE_TIMEOUT,default=5s"`
	WSReadIdleTimeout   time.Duration `env:"CHAT_WS_READ_IDLE_TIMEOUT,default=2m"`
	WSHeartbeatInterval time.Duration `env:"CHAT_WS_HEARTBEAT_INTERVAL,default=25s"`
	WSHeartbeatTimeout  time.Duration `env:"CHAT_WS_HEARTBEAT_TIMEOUT,default=5s"`
	WSRateEvents        int           `env:"CHAT_WS_RATE_EVENTS,default=120"`
	WSRateWindow        time.Duration `env:"CHAT_WS_RATE_WINDOW,default=10s"`

	// Sessions.
	SessionTTL    time.Duration `env:"CHAT_SESSION_TTL,default=168h"`
	SecureCookies bool          `env:"CHAT_SECURE_COOKIES,default=false"`

	// OAuth collaborator. Variable names match the reference deployment.
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL,default=http://localhost:5000/auth/google/callback"`
	PostLoginRedirect  string `env:"CHAT_POST_LOGIN_REDIRECT,default=http://localhost:3000/dashboard"`
	PostLogoutRedirect string `env:"CHAT_POST_LOGOUT_REDIRECT,default=http://localhost:3000/"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: load config: %w", err)
	}
	return cfg, nil
}

// AllowedOrigins returns the origin allowlist as a cleaned slice.
func (c Config) AllowedOrigins() []string {
	parts := strings.Split(c.WSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
