package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/smartops/authd/internal/auth"
	"github.com/smartops/authd/internal/cookies"
	"github.com/smartops/authd/internal/credentials"
	"github.com/smartops/authd/internal/httpapi"
	"github.com/smartops/authd/internal/httpx"
	"github.com/smartops/authd/internal/logger"
	"github.com/smartops/authd/internal/sessionpurge"
	"github.com/smartops/authd/internal/store"
	memorystore "github.com/smartops/authd/internal/store/memory"
	postgresstore "github.com/smartops/authd/internal/store/postgres"
	"github.com/smartops/authd/internal/telemetry"
	"github.com/smartops/authd/internal/token"
)

type ServerCmd struct {
	// Server configuration
	Listen     string `help:"HTTP server listen address" default:"0.0.0.0:3000" env:"AUTHD_LISTEN"`
	Production bool   `help:"production mode - cookies are marked Secure" default:"false" env:"AUTHD_PRODUCTION"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins" default:"http://localhost:5173" env:"AUTHD_CORS_ORIGINS"`

	// Secrets. The token and cookie secrets are independent: one signs the
	// bearer token itself, the other signs the cookie envelope.
	TokenSecret        string `help:"secret for access token signing (min 32 bytes)" env:"AUTHD_TOKEN_SECRET" required:""`
	RefreshTokenSecret string `help:"secret for refresh token signing (min 32 bytes)" env:"AUTHD_REFRESH_TOKEN_SECRET" required:""`
	CookieSecret       string `help:"secret for cookie signing (min 32 bytes)" env:"AUTHD_COOKIE_SECRET" required:""`

	// Expiry horizons. Three deliberately independent clocks: the token's
	// embedded expiry, the cookie's max-age, and the session TTL anchored
	// to creation time. The cookie may outlive the token, in which case
	// token verification fails first on the next request.
	AccessTokenTTL time.Duration `help:"access token embedded expiry" default:"15m" env:"AUTHD_ACCESS_TOKEN_TTL"`
	SessionTTL     time.Duration `help:"session lifetime measured from creation" default:"30m" env:"AUTHD_SESSION_TTL"`
	CookieMaxAge   time.Duration `help:"bearer cookie max-age" default:"30m" env:"AUTHD_COOKIE_MAX_AGE"`

	// Credential hashing
	BcryptCost int `help:"bcrypt work factor for password hashing" default:"10" env:"AUTHD_BCRYPT_COST"`

	// Operational
	PurgeInterval time.Duration `help:"interval between expired-session purge runs" default:"1m" env:"AUTHD_PURGE_INTERVAL"`
	Tracing       bool          `help:"enable tracing" default:"false" env:"AUTHD_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"AUTHD_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"AUTHD_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "authd", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Create stores based on store type
	var (
		userStore    store.UserStore
		sessionStore store.SessionStore
	)

	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return fmt.Errorf("failed to validate postgres flags: %w", err)
		}

		poolCfg := &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create store pool: %w", err)
		}
		defer pool.Close()

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		userStore = postgresstore.NewUserStore(pool)
		sessionStore = postgresstore.NewSessionStore(pool)
		log.Info().Msg("Using PostgreSQL stores")

	default:
		userStore = memorystore.NewUserStore()
		sessionStore = memorystore.NewSessionStore()
		log.Info().Msg("Using in-memory stores")
	}

	// Signing components get their secrets at construction time; nothing in
	// the request path reads ambient configuration.
	signer, err := token.New([]byte(c.TokenSecret), []byte(c.RefreshTokenSecret), "authd")
	if err != nil {
		return fmt.Errorf("failed to initialize token signer: %w", err)
	}

	codec, err := cookies.New([]byte(c.CookieSecret), c.CookieMaxAge, c.Production)
	if err != nil {
		return fmt.Errorf("failed to initialize cookie codec: %w", err)
	}

	creds := credentials.New(userStore, c.BcryptCost)

	svc := auth.NewService(creds, sessionStore, signer, auth.ServiceConfig{
		AccessTokenTTL: c.AccessTokenTTL,
		SessionTTL:     c.SessionTTL,
	})

	guard := auth.NewGuard(codec, signer, sessionStore)
	apiHandler := httpapi.NewHandler(svc, guard, codec, signer)

	// Background purge of expired sessions
	purger := sessionpurge.New(sessionStore, c.PurgeInterval)
	go purger.Run(ctx)

	// Middleware chain: request logging, then client IP resolution for the
	// guard's fingerprint check, then cross-origin protections around the
	// cookie-authenticated API.
	protection := csrf.New()
	for _, origin := range c.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			return fmt.Errorf("invalid CORS origin %q: %w", origin, err)
		}
	}

	var handler http.Handler = apiHandler.Routes()
	handler = httpx.ClientIPMiddleware()(handler)
	handler = logger.RequestLogger(log)(handler)
	handler = protection.Handler(handler)
	handler = withCORS(c.CORSOrigins, handler)

	srv := configureHTTPServer(c.Listen, handler)

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Forced shutdown")
			_ = srv.Close()
		}
	}()

	log.Info().Str("addr", c.Listen).Str("store", c.StoreType).Msg("Starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// withCORS adds CORS support with credentials enabled, required for
// cookie-based authentication from a browser frontend.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return middleware.Handler(h)
}
