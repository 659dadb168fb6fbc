package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fernway/storefront/pkg/authapi"
	"github.com/fernway/storefront/pkg/profiles"
	"github.com/fernway/storefront/pkg/sessionctx"
	"github.com/fernway/storefront/pkg/verifyflow"
	verifyapi "github.com/fernway/storefront/pkg/verifyflow/api"
)

type ServerConfig struct {
	Host string `env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port uint16 `env:"HTTP_PORT" env-default:"4000"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type AuthBackendConfig struct {
	BaseURL   string `env:"AUTH_BASE_URL" env-default:"http://localhost:9999"`
	APIKey    string `env:"AUTH_API_KEY"`
	JWTSecret string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
}

type ProfileStoreConfig struct {
	Kind        string `env:"PROFILE_STORE" env-default:"rest"`
	RESTBaseURL string `env:"PROFILE_REST_BASE_URL" env-default:"http://localhost:3000"`
	APIKey      string `env:"PROFILE_REST_API_KEY"`

	Host     string `env:"PROFILE_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"PROFILE_PG_PORT" env-default:"5432"`
	Database string `env:"PROFILE_PG_DATABASE" env-default:"storefront_db"`
	User     string `env:"PROFILE_PG_USER" env-default:"storefront"`
	Password string `env:"PROFILE_PG_PASSWORD" env-default:"pwd"`
}

func (p ProfileStoreConfig) toDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Database)
}

type VerificationConfig struct {
	ConfirmPath     string `env:"CONFIRM_PATH" env-default:"/auth/confirm"`
	RedirectTarget  string `env:"RESEND_REDIRECT_TARGET" env-default:"http://localhost:4000/auth/confirm"`
	RedirectDelayMS int    `env:"REDIRECT_DELAY_MS" env-default:"2500"`
	ResendLimit     int    `env:"RESEND_LIMIT" env-default:"3"`
	ResendWindow    string `env:"RESEND_WINDOW" env-default:"1h"`
}

type Config struct {
	Server       ServerConfig
	AuthBackend  AuthBackendConfig
	ProfileStore ProfileStoreConfig
	Verification VerificationConfig
}

func main() {
	_ = godotenv.Load()

	config := Config{}
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	authClient := authapi.NewClient(config.AuthBackend.BaseURL, config.AuthBackend.APIKey)

	var pool *pgxpool.Pool
	repoConfig := profiles.RepositoryConfig{
		RESTBaseURL: config.ProfileStore.RESTBaseURL,
		APIKey:      config.ProfileStore.APIKey,
	}
	if config.ProfileStore.Kind == "postgres" || config.ProfileStore.Kind == "postgresql" {
		var err error
		pool, err = pgxpool.New(context.Background(), config.ProfileStore.toDatabaseURL())
		if err != nil {
			slog.Error("Failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repoConfig.Pool = pool
	}

	profileRepo, err := profiles.NewRepository(config.ProfileStore.Kind, repoConfig)
	if err != nil {
		slog.Error("Failed to create profile repository", "error", err)
		os.Exit(1)
	}
	synchronizer := profiles.NewSynchronizer(profileRepo)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := verifyflow.NewCollector(registry)

	executor := verifyflow.NewExecutor(
		verifyflow.DefaultRegistry(),
		&verifyflow.Dependencies{
			Auth:     authClient,
			Profiles: synchronizer,
			Metrics:  metrics,
		},
		verifyflow.WithRedirectDelay(time.Duration(config.Verification.RedirectDelayMS)*time.Millisecond),
	)

	resendWindow, err := time.ParseDuration(config.Verification.ResendWindow)
	if err != nil {
		slog.Warn("Invalid resend window, using default", "value", config.Verification.ResendWindow)
		resendWindow = verifyflow.DefaultResendWindow
	}
	resendController := verifyflow.NewResendController(authClient,
		verifyflow.WithResendBudget(config.Verification.ResendLimit, resendWindow),
		verifyflow.WithRedirectTarget(config.Verification.RedirectTarget),
	)

	sessionContext := sessionctx.New(authClient, synchronizer, profileRepo)

	tokenAuth := jwtauth.New("HS256", []byte(config.AuthBackend.JWTSecret), nil)
	handler := verifyapi.NewHandler(executor, resendController, sessionContext,
		verifyapi.WithConfirmPath(config.Verification.ConfirmPath),
		verifyapi.WithMetrics(metrics),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Mount("/api", verifyapi.Routes(handler, tokenAuth))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              config.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Storefront auth service listening", "addr", server.Addr, "profile_store", config.ProfileStore.Kind)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
}
