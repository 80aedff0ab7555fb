// Package config provides configuration parsing and environment variable
// handling for bengproxy, shaped like the teacher's internal/options
// package: env-or-default helpers, a ValidationError type, .env loading via
// godotenv, and a flag layer on top of the environment.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration for one bengproxy worker process.
type Config struct {
	LogLevel zerolog.Level

	ListenAddr            string
	TranslationServerAddr string
	ControlListenAddr     string

	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	HeaderTimeout time.Duration

	PersistSessions      bool
	SessionPath          string
	SessionDuration      time.Duration
	SessionCookieName    string
	DynamicSessionCookie bool
	CookieSecure         bool
	CookieDomain         string
	ClusterTag           int

	TrustedProxies []string

	StockMaxPerKey      int
	StockMaxIdleTime    time.Duration
	StockAcquireTimeout time.Duration

	LhttpSocketDir string
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

func validateRequired(name string, value *string) error {
	if *value == "" {
		return ValidationError{Field: name, Message: "this option is required"}
	}

	return nil
}

func envStringOrDefault(name, d string) string {
	if v, exists := os.LookupEnv(name); exists && v != "" {
		return v
	}

	return d
}

func envDurationOrDefault(name string, d time.Duration) (time.Duration, error) {
	raw := envStringOrDefault(name, d.String())

	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as duration: %v", raw, err),
		}
	}

	return v, nil
}

func envLogLevelOrDefault(name string, d zerolog.Level) (string, error) {
	raw := envStringOrDefault(name, d.String())

	if _, err := zerolog.ParseLevel(raw); err != nil {
		return "", ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as log level: %v", raw, err),
		}
	}

	return raw, nil
}

func envBoolOrDefault(name string, d bool) (bool, error) {
	raw := envStringOrDefault(name, strconv.FormatBool(d))

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as bool: %v", raw, err),
		}
	}

	return v, nil
}

func envIntOrDefault(name string, d int) (int, error) {
	raw := envStringOrDefault(name, strconv.Itoa(d))

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ValidationError{
			Field:   name,
			Message: fmt.Sprintf("could not parse %q as int: %v", raw, err),
		}
	}

	return v, nil
}

// Parse parses command line flags and environment variables into a Config.
// It loads from .env files, parses flags, and validates required settings.
func Parse() (*Config, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	logLevelStr, err := envLogLevelOrDefault("LOG_LEVEL", zerolog.InfoLevel)
	if err != nil {
		return nil, err
	}

	persistSessions, err := envBoolOrDefault("PERSIST_SESSIONS", false)
	if err != nil {
		return nil, err
	}

	sessionDuration, err := envDurationOrDefault("SESSION_DURATION", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	dynamicSessionCookie, err := envBoolOrDefault("DYNAMIC_SESSION_COOKIE", false)
	if err != nil {
		return nil, err
	}

	cookieSecure, err := envBoolOrDefault("COOKIE_SECURE", true)
	if err != nil {
		return nil, err
	}

	clusterTag, err := envIntOrDefault("CLUSTER_TAG", 0)
	if err != nil {
		return nil, err
	}

	readTimeout, err := envDurationOrDefault("READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := envDurationOrDefault("WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	idleTimeout, err := envDurationOrDefault("IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}

	headerTimeout, err := envDurationOrDefault("HEADER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	stockMaxPerKey, err := envIntOrDefault("STOCK_MAX_PER_KEY", 16)
	if err != nil {
		return nil, err
	}

	stockMaxIdleTime, err := envDurationOrDefault("STOCK_MAX_IDLE_TIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	stockAcquireTimeout, err := envDurationOrDefault("STOCK_ACQUIRE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	var (
		fLogLevel = flag.String("log-level", logLevelStr,
			"Log level. Valid values are: trace, debug, info, warn, error, fatal, panic.")

		fListenAddr = flag.String("listen", envStringOrDefault("LISTEN_ADDR", ":8080"),
			"Address the HTTP listener binds to.")
		fTranslationServerAddr = flag.String("translation-server", envStringOrDefault("TRANSLATION_SERVER_ADDR", ""),
			"Address (host:port) of the translation server.")
		fControlListenAddr = flag.String("control-listen", envStringOrDefault("CONTROL_LISTEN_ADDR", ":5478"),
			"UDP address the control protocol listener binds to.")

		fPersistSessions = flag.Bool("persist-sessions", persistSessions,
			"Whether or not to persist sessions into a Bolt database.")
		fSessionPath = flag.String("session-path", envStringOrDefault("SESSION_PATH", "sessions.bbolt"),
			"Path to the session database file. (Only required when --persist-sessions is set)")
		fSessionDuration = flag.Duration("session-duration", sessionDuration,
			"Duration of a session before it expires.")
		fSessionCookieName = flag.String("session-cookie-name", envStringOrDefault("SESSION_COOKIE_NAME", "beng_proxy_session"),
			"Name (or template) of the session cookie.")
		fDynamicSessionCookie = flag.Bool("dynamic-session-cookie", dynamicSessionCookie,
			"Append a CRC16 of the request Host to the session cookie name.")
		fCookieSecure = flag.Bool("cookie-secure", cookieSecure,
			"Mark session cookies Secure. Set to false only for HTTP-only environments.")
		fCookieDomain = flag.String("cookie-domain", envStringOrDefault("COOKIE_DOMAIN", ""),
			"Domain attribute for the session cookie. Empty means host-only.")
		fClusterTag = flag.Int("cluster-tag", clusterTag,
			"Low-byte cluster tag embedded in minted session ids (0-255).")

		fTrustedProxies = flag.String("trusted-proxies", envStringOrDefault("TRUSTED_PROXIES", ""),
			"Comma-separated list of trusted proxy CIDRs.")

		fReadTimeout   = flag.Duration("read-timeout", readTimeout, "Request read timeout.")
		fWriteTimeout  = flag.Duration("write-timeout", writeTimeout, "Response write timeout.")
		fIdleTimeout   = flag.Duration("idle-timeout", idleTimeout, "Keep-alive idle timeout.")
		fHeaderTimeout = flag.Duration("header-timeout", headerTimeout, "Header-phase read timeout.")

		fStockMaxPerKey = flag.Int("stock-max-per-key", stockMaxPerKey,
			"Maximum concurrent leased connections per backend key.")
		fStockMaxIdleTime = flag.Duration("stock-max-idle-time", stockMaxIdleTime,
			"Maximum time an idle stock connection is kept before closing.")
		fStockAcquireTimeout = flag.Duration("stock-acquire-timeout", stockAcquireTimeout,
			"Timeout waiting for a stock connection to become available.")

		fLhttpSocketDir = flag.String("lhttp-socket-dir", envStringOrDefault("LHTTP_SOCKET_DIR", os.TempDir()),
			"Directory where spawned lhttp child sockets are created.")
	)

	if !flag.Parsed() {
		flag.Parse()
	}

	logLevel, err := zerolog.ParseLevel(*fLogLevel)
	if err != nil {
		return nil, ValidationError{Field: "log-level", Message: err.Error()}
	}

	if err := validateRequired("translation-server", fTranslationServerAddr); err != nil {
		return nil, err
	}

	if *fPersistSessions {
		if err := validateRequired("session-path", fSessionPath); err != nil {
			return nil, err
		}
	}

	if *fClusterTag < 0 || *fClusterTag > 255 {
		return nil, ValidationError{Field: "cluster-tag", Message: "must be between 0 and 255"}
	}

	return &Config{
		LogLevel: logLevel,

		ListenAddr:            *fListenAddr,
		TranslationServerAddr: *fTranslationServerAddr,
		ControlListenAddr:     *fControlListenAddr,

		ReadTimeout:   *fReadTimeout,
		WriteTimeout:  *fWriteTimeout,
		IdleTimeout:   *fIdleTimeout,
		HeaderTimeout: *fHeaderTimeout,

		PersistSessions:      *fPersistSessions,
		SessionPath:          *fSessionPath,
		SessionDuration:      *fSessionDuration,
		SessionCookieName:    *fSessionCookieName,
		DynamicSessionCookie: *fDynamicSessionCookie,
		CookieSecure:         *fCookieSecure,
		CookieDomain:         *fCookieDomain,
		ClusterTag:           *fClusterTag,

		TrustedProxies: splitCSV(*fTrustedProxies),

		StockMaxPerKey:      *fStockMaxPerKey,
		StockMaxIdleTime:    *fStockMaxIdleTime,
		StockAcquireTimeout: *fStockAcquireTimeout,

		LhttpSocketDir: *fLhttpSocketDir,
	}, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}

	var out []string

	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
