package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	invoiceapp "github.com/dmehra2102/order-invoicing/internal/invoice/application"
	"github.com/dmehra2102/order-invoicing/internal/invoice/infrastructure/email"
	invoicekafka "github.com/dmehra2102/order-invoicing/internal/invoice/infrastructure/kafka"
	"github.com/dmehra2102/order-invoicing/internal/invoice/infrastructure/pdf"
	orderpg "github.com/dmehra2102/order-invoicing/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/order-invoicing/internal/user/infrastructure/userservice"
	"github.com/dmehra2102/order-invoicing/pkg/config"
	"github.com/dmehra2102/order-invoicing/pkg/idempotency"
	"github.com/dmehra2102/order-invoicing/pkg/logging"
	"github.com/dmehra2102/order-invoicing/pkg/metrics"
	"github.com/dmehra2102/order-invoicing/pkg/pgstore"
	"github.com/dmehra2102/order-invoicing/pkg/shutdown"
	"github.com/dmehra2102/order-invoicing/pkg/tracing"
)

const consumerGroup = "invoice-dispatcher"

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

	tp, err := tracing.Init(ctx, "invoice-dispatcher", cfg.OTelEndpoint, log)
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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, consumerGroup, 24*time.Hour)

	repo := orderpg.NewRepository(log, pool)
	users := userservice.NewClient(log, cfg.UserServiceURL,
		userservice.Credentials{Email: cfg.UserServiceEmail, Password: cfg.UserServicePassword},
		cfg.UserServiceTimeout, cfg.LoginTimeout)
	issuer := invoiceapp.Issuer(cfg.Issuer)
	renderer := invoiceapp.NewRenderer(log, repo, users, pdf.NewEngine(), issuer, cfg.Currency)
	dispatcher := invoiceapp.NewDispatcher(log, repo, users, renderer,
		email.NewClient(cfg.EmailServiceURL, cfg.EmailServiceTimeout), issuer.Name)

	reader := invoicekafka.NewReader(cfg.KafkaBrokers, cfg.InvoiceTopic, consumerGroup)
	consumer := invoicekafka.NewConsumer(log, reader, dispatcher, idem, cfg.DispatchMaxAttempts)

	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "err", err)
		}
	}()

	log.Info("invoice-dispatcher consuming", "topic", cfg.InvoiceTopic, "group", consumerGroup)
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("invoice-dispatcher shutdown complete")
}
