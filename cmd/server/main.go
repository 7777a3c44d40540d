// Command server runs the browse-ledger backend: the TCP command transport
// (the authoritative API) plus the ops HTTP surface (health, metrics, and
// read-only admin mirrors). Configuration comes from the environment, with
// .env honored in development.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-view-backend/internal/auth"
	"github.com/tbourn/go-view-backend/internal/command"
	"github.com/tbourn/go-view-backend/internal/config"
	httpapi "github.com/tbourn/go-view-backend/internal/http"
	"github.com/tbourn/go-view-backend/internal/observability"
	"github.com/tbourn/go-view-backend/internal/repo"
	"github.com/tbourn/go-view-backend/internal/server"
	"github.com/tbourn/go-view-backend/internal/services"
	"github.com/tbourn/go-view-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Msg("starting go-view-backend")

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	browseSvc := services.NewBrowseService(db, cfg.Ledger)
	userSvc := &services.UserService{DB: db}
	eventSvc := &services.EventService{DB: db}

	router := command.NewRouter()
	command.NewHandlers(browseSvc, userSvc, eventSvc).Register(router)

	verifier := auth.NewVerifier(cfg.CommandSecret)
	if !verifier.Enabled() {
		log.Warn().Msg("COMMAND_SECRET is empty; signature verification disabled")
	}
	limiter := server.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)

	cmdSrv := server.New(cfg.CommandAddr, router, verifier, limiter, cfg.MaxFrameBytes, cfg.ReadIdleTimeout)
	if err := cmdSrv.Start(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.CommandAddr).Msg("start command server")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, browseSvc, cfg)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("ops server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	// Block until SIGINT/SIGTERM, then drain both servers within the budget.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown")
	}
	if err := cmdSrv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("command server shutdown")
	}
	if err := shutdownOTel(ctx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}

	log.Info().Msg("bye")
}
