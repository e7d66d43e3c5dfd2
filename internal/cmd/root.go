// Package cmd is the console's command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/johndosdos/deskchat/internal/api"
	"github.com/johndosdos/deskchat/internal/auth"
	"github.com/johndosdos/deskchat/internal/broker"
	"github.com/johndosdos/deskchat/internal/chat"
	"github.com/johndosdos/deskchat/internal/config"
	"github.com/johndosdos/deskchat/internal/handler"
	"github.com/johndosdos/deskchat/internal/metrics"
	"github.com/johndosdos/deskchat/internal/notify"
	ratelimiter "github.com/johndosdos/deskchat/internal/rate_limiter"
	ws "github.com/johndosdos/deskchat/internal/websocket"
)

const applicationName = "deskchat"

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "deskchat",
	Short: "Live support console",
	Long: `deskchat signs in to the support backend, keeps a realtime connection
open and serves the agent console on a local address.`,
	SilenceUsage: true,
	RunE:         runRoot,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/deskchat/config.yaml)")
	f.String("api-url", "http://localhost:5000", "Support backend base URL")
	f.String("socket-url", "", "Realtime endpoint (default: derived from --api-url)")
	f.String("token", "", "Bearer token of the signed-in user")
	f.String("jwt-secret", "", "Verify the token with this HS256 secret")
	f.String("user-id", "", "Override the user id from the token")
	f.String("role", "", `Override the role from the token: "agent", "admin" or "superadmin"`)
	f.String("listen", "127.0.0.1:8090", "Address the console is served on")
	f.String("log-level", "info", `Log level: "debug", "info", "warn" or "error"`)
	f.String("date-layout", "long", `Day separator format: "long" or "numeric"`)
	f.Int("send-rate", 30, "Messages per minute allowed into one conversation")
	f.String("notifications", "default", `Desktop notification permission: "granted", "denied" or "default"`)
	f.Bool("bell", true, "Ring the terminal bell on new client messages")

	for _, name := range []string{
		"api-url", "socket-url", "token", "jwt-secret", "user-id", "role", "listen",
		"log-level", "date-layout", "send-rate", "notifications", "bell",
	} {
		cobra.CheckErr(v.BindPFlag(flagKey(name), f.Lookup(name)))
	}
}

func flagKey(name string) string {
	out := []byte(name)
	for i, c := range out {
		if c == '-' {
			out[i] = '_'
		}
	}
	return string(out)
}

func configDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Clean(filepath.Join(configHome, applicationName))
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
	}

	// Silently ignore missing config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			slog.Warn("could not read config file", "error", err)
		}
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := config.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	identity, err := resolveIdentity(cfg)
	if err != nil {
		return err
	}
	logger.Info("signed in", "user_id", identity.UserID, "role", identity.Role)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, identity, logger)
}

func serve(ctx context.Context, cfg config.Config, identity auth.Identity, logger *slog.Logger) error {
	m := metrics.New()

	backend := api.NewClient(cfg.APIURL, cfg.Token, cfg.RequestTimeout, logger)
	socket := ws.NewSocket(ws.Options{
		URL:          cfg.SocketURL,
		Token:        cfg.Token,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
		PingInterval: cfg.PingInterval,
	}, logger)

	var sound notify.Sound = notify.Mute{}
	if cfg.Bell {
		sound = notify.NewBell(os.Stdout)
	}

	limiter := ratelimiter.NewConversationLimiter(cfg.SendRate, time.Minute, ratelimiter.CleanupOpts{
		TTL:      10 * time.Minute,
		Interval: time.Minute,
	})
	defer limiter.Cancel()

	toaster := notify.NewToaster(5, logger)
	desktop := notify.NewDesktop(notify.ParsePermission(cfg.Notifications), os.Stdout, logger)
	views := broker.New[*chat.View](logger)

	session := chat.NewSession(chat.Options{
		Identity:   identity,
		Backend:    backend,
		Transport:  socket,
		Logger:     logger,
		Metrics:    m,
		Audio:      notify.NewAudioGate(sound, logger),
		Desktop:    desktop,
		Toaster:    toaster,
		Limiter:    limiter,
		Broker:     views,
		DateLayout: cfg.DateLayout,
		Location:   time.Local,
	})

	server := &http.Server{
		Addr: cfg.Listen,
		Handler: handler.NewRouter(handler.Deps{
			Console:  session,
			Feed:     views,
			Unlocker: session,
			Toaster:  toaster,
			Desktop:  desktop,
			Metrics:  m,
			BaseURL:  backend.BaseURL(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// The event stream stays open, so no write deadline.
		IdleTimeout: 30 * time.Second,
	}

	// The session outlives the signal long enough to leave its rooms.
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	errCh := make(chan error, 3)
	go func() {
		errCh <- socket.Run(runCtx)
	}()
	go func() {
		errCh <- session.Run(runCtx)
	}()
	go func() {
		logger.Info("console listening", "addr", "http://"+cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received; shutting down...")
	case runErr = <-errCh:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.Error("console stopped", "error", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := session.Logout(shutdownCtx); err != nil && !errors.Is(err, chat.ErrClosed) {
		logger.Warn("logout failed", "error", err)
	}
	cancelRun()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", "error", err)
	}

	logger.Info("console stopped")
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}
