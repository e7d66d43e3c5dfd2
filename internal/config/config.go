// Package config resolves console settings from flags, environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "DESKCHAT"

// Date layouts for day separators.
const (
	LayoutLong    = "January 2, 2006"
	LayoutNumeric = "1/2/2006"
)

var ErrMissingToken = errors.New("internal/config: token is required")

type Config struct {
	APIURL         string
	SocketURL      string
	Token          string
	JWTSecret      string
	UserID         string
	Role           string
	Listen         string
	LogLevel       string
	DateLayout     string
	SendRate       int
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	PingInterval   time.Duration
	RequestTimeout time.Duration
	Notifications  string
	Bell           bool
}

// SetDefaults registers every key so AutomaticEnv can resolve it even
// without a config file entry.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api_url", "http://localhost:5000")
	v.SetDefault("socket_url", "")
	v.SetDefault("token", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("user_id", "")
	v.SetDefault("role", "")
	v.SetDefault("listen", "127.0.0.1:8090")
	v.SetDefault("log_level", "info")
	v.SetDefault("date_layout", "long")
	v.SetDefault("send_rate", 30)
	v.SetDefault("reconnect_min", time.Second)
	v.SetDefault("reconnect_max", 5*time.Second)
	v.SetDefault("ping_interval", 25*time.Second)
	v.SetDefault("request_timeout", 20*time.Second)
	v.SetDefault("notifications", "default")
	v.SetDefault("bell", true)
}

// New returns a viper instance reading DESKCHAT_* variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		APIURL:         strings.TrimRight(v.GetString("api_url"), "/"),
		SocketURL:      v.GetString("socket_url"),
		Token:          strings.TrimSpace(v.GetString("token")),
		JWTSecret:      v.GetString("jwt_secret"),
		UserID:         v.GetString("user_id"),
		Role:           v.GetString("role"),
		Listen:         v.GetString("listen"),
		LogLevel:       v.GetString("log_level"),
		SendRate:       v.GetInt("send_rate"),
		ReconnectMin:   v.GetDuration("reconnect_min"),
		ReconnectMax:   v.GetDuration("reconnect_max"),
		PingInterval:   v.GetDuration("ping_interval"),
		RequestTimeout: v.GetDuration("request_timeout"),
		Notifications:  v.GetString("notifications"),
		Bell:           v.GetBool("bell"),
	}

	if cfg.Token == "" {
		return Config{}, ErrMissingToken
	}

	switch strings.ToLower(v.GetString("date_layout")) {
	case "", "long":
		cfg.DateLayout = LayoutLong
	case "numeric":
		cfg.DateLayout = LayoutNumeric
	default:
		return Config{}, fmt.Errorf("internal/config: unknown date_layout %q", v.GetString("date_layout"))
	}

	if cfg.SendRate <= 0 {
		return Config{}, fmt.Errorf("internal/config: send_rate must be positive, got %d", cfg.SendRate)
	}
	if cfg.ReconnectMin <= 0 || cfg.ReconnectMax < cfg.ReconnectMin {
		return Config{}, fmt.Errorf("internal/config: invalid reconnect window %s..%s", cfg.ReconnectMin, cfg.ReconnectMax)
	}

	if cfg.SocketURL == "" {
		u, err := SocketURL(cfg.APIURL)
		if err != nil {
			return Config{}, err
		}
		cfg.SocketURL = u
	}

	return cfg, nil
}

// SocketURL derives the realtime endpoint from the REST base URL.
func SocketURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("internal/config: invalid api_url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("internal/config: unsupported api_url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}
