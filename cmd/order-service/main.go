package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	invoiceapp "github.com/dmehra2102/order-invoicing/internal/invoice/application"
	"github.com/dmehra2102/order-invoicing/internal/invoice/infrastructure/email"
	"github.com/dmehra2102/order-invoicing/internal/invoice/infrastructure/pdf"
	"github.com/dmehra2102/order-invoicing/internal/order/application"
	orderhttp "github.com/dmehra2102/order-invoicing/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/order-invoicing/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/order-invoicing/internal/order/infrastructure/postgres"
	shipmentapp "github.com/dmehra2102/order-invoicing/internal/shipment/application"
	shipmenthttp "github.com/dmehra2102/order-invoicing/internal/shipment/infrastructure/http"
	shipmentpg "github.com/dmehra2102/order-invoicing/internal/shipment/infrastructure/postgres"
	"github.com/dmehra2102/order-invoicing/internal/user/infrastructure/userservice"
	"github.com/dmehra2102/order-invoicing/pkg/auth"
	"github.com/dmehra2102/order-invoicing/pkg/config"
	"github.com/dmehra2102/order-invoicing/pkg/httpx"
	"github.com/dmehra2102/order-invoicing/pkg/logging"
	"github.com/dmehra2102/order-invoicing/pkg/metrics"
	"github.com/dmehra2102/order-invoicing/pkg/outbox"
	"github.com/dmehra2102/order-invoicing/pkg/pgstore"
	"github.com/dmehra2102/order-invoicing/pkg/shutdown"
	"github.com/dmehra2102/order-invoicing/pkg/tracing"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config invalid", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)
	metrics.Register()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "order-service", cfg.OTelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()

	pool, err := pgstore.Connect(ctx, cfg.PGURL, cfg.DBMaxConns)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Invoice pipeline
	repo := orderpg.NewRepository(log, pool)
	users := userservice.NewClient(log, cfg.UserServiceURL,
		userservice.Credentials{Email: cfg.UserServiceEmail, Password: cfg.UserServicePassword},
		cfg.UserServiceTimeout, cfg.LoginTimeout)
	issuer := invoiceapp.Issuer(cfg.Issuer)
	renderer := invoiceapp.NewRenderer(log, repo, users, pdf.NewEngine(), issuer, cfg.Currency)
	dispatcher := invoiceapp.NewDispatcher(log, repo, users, renderer,
		email.NewClient(cfg.EmailServiceURL, cfg.EmailServiceTimeout), issuer.Name)

	enqueue := cfg.DispatchMode == config.DispatchOutbox
	orders := application.NewService(log, repo, dispatcher, enqueue)

	// Outbox relay
	if enqueue {
		writer := orderkafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaWriteTimeout)
		defer writer.Close()

		relay := outbox.NewRelay(log, orderpg.NewOutboxStore(log, pool),
			outbox.NewDispatcher(log, writer, cfg.InvoiceTopic), "order-service-relay",
			outbox.WithMaxRetries(cfg.DispatchMaxAttempts))
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	}
	log.Info("invoice dispatch configured", "mode", cfg.DispatchMode)

	// HTTP server
	verifier := auth.NewVerifier(cfg.AuthSecret, cfg.AuthAlgorithm)
	limiter := httpx.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer, httpx.RequestLogger(log))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"service": "order-service", "version": version})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	orderhttp.NewHandler(log, orders, renderer).Mount(r, limiter.Middleware, verifier.Middleware)
	shipmenthttp.NewHandler(log, shipmentapp.NewService(log, shipmentpg.NewRepository(pool))).Mount(r)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("order-service shutdown complete")
}
