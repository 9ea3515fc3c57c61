package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"steward/internal/bot"
	"steward/internal/config"
	"steward/internal/secrets"
	"steward/internal/settings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	tokenCategory = "token"
	tokenProvider = "discord"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := config.BuildLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	vault := secrets.New(cfg.SecretsDir)

	args := os.Args[1:]
	switch {
	case len(args) == 0 || args[0] == "run":
		run(cfg, logger, vault)
	case len(args) == 2 && args[0] == "token" && args[1] == "set":
		if err := setToken(vault, os.Stdin); err != nil {
			logger.Fatal("store token failed", zap.Error(err))
		}
		fmt.Println("token stored in", cfg.SecretsDir)
	case len(args) == 2 && args[0] == "token" && args[1] == "clear":
		if err := vault.Delete(tokenCategory, tokenProvider); err != nil {
			logger.Fatal("clear token failed", zap.Error(err))
		}
		fmt.Println("token cleared")
	default:
		fmt.Fprintln(os.Stderr, "usage: steward [run | token set | token clear]")
		os.Exit(2)
	}
}

func setToken(vault *secrets.Store, in io.Reader) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return errors.New("empty token on stdin")
	}
	return vault.Set(tokenCategory, tokenProvider, token)
}

func resolveToken(cfg config.Config, vault *secrets.Store) (string, error) {
	if cfg.DiscordToken != "" {
		return cfg.DiscordToken, nil
	}
	return vault.Get(tokenCategory, tokenProvider)
}

func openBackend(ctx context.Context, cfg config.SettingsConfig, logger *zap.Logger) (settings.Backend, func(), error) {
	if cfg.Backend != "postgres" {
		logger.Info("settings backend", zap.String("backend", "file"), zap.String("path", cfg.Path))
		return settings.NewFileBackend(cfg.Path), func() {}, nil
	}
	backend, err := settings.NewPostgresBackend(ctx, cfg.DatabaseURL, cfg.Document)
	if err != nil {
		return nil, nil, err
	}
	if err := backend.Migrate(ctx); err != nil {
		backend.Close()
		return nil, nil, err
	}
	logger.Info("settings backend", zap.String("backend", "postgres"), zap.String("document", cfg.Document))
	return backend, backend.Close, nil
}

func storeDefaults(d config.SettingsDefaults) settings.Record {
	return settings.Record{
		WelcomeChannel: d.WelcomeChannel,
		RulesChannel:   d.RulesChannel,
		WelcomeEnabled: d.WelcomeEnabled,
		GoodbyeEnabled: d.GoodbyeEnabled,
		WelcomeMessage: d.WelcomeMessage,
		GoodbyeMessage: d.GoodbyeMessage,
		EmbedColor:     d.EmbedColor,
	}
}

func healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func run(cfg config.Config, logger *zap.Logger, vault *secrets.Store) {
	token, err := resolveToken(cfg, vault)
	if err != nil {
		var missing *secrets.MissingSecretError
		if errors.As(err, &missing) {
			logger.Fatal("discord token missing, run `steward token set` or set "+missing.EnvVar, zap.String("path", missing.Path))
		}
		logger.Fatal("discord token unreadable", zap.Error(err))
	}

	ctx := context.Background()
	backend, closeBackend, err := openBackend(ctx, cfg.Settings, logger)
	if err != nil {
		logger.Fatal("settings backend init failed", zap.Error(err))
	}
	defer closeBackend()

	store, err := settings.Open(ctx, backend, settings.Options{
		Defaults:   storeDefaults(cfg.Settings.Defaults),
		StrictKeys: cfg.Settings.StrictKeys,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("settings load failed", zap.Error(err))
	}

	botSvc, err := bot.New(cfg, token, logger, store)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}
	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started", zap.Int("guilds_with_settings", len(store.Guilds())))

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr, Handler: healthMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	botSvc.Close(shutdownCtx)
}
