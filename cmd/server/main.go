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

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitclaim/internal/billrpc"
	"github.com/mmynk/splitclaim/internal/config"
	"github.com/mmynk/splitclaim/internal/middleware"
	"github.com/mmynk/splitclaim/internal/notify"
	"github.com/mmynk/splitclaim/internal/realtime"
	"github.com/mmynk/splitclaim/internal/realtime/redis"
	"github.com/mmynk/splitclaim/internal/service"
	"github.com/mmynk/splitclaim/internal/storage/sqlite"
	"github.com/mmynk/splitclaim/internal/telemetry"
	"github.com/mmynk/splitclaim/pkg/logging"
)

const serviceName = "splitclaim-server"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadServer(ctx)
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	publisher, closePublisher, err := openPublisher(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closePublisher()

	var opts []service.Option
	if cfg.BillReadyWebhookURL != "" {
		opts = append(opts, service.WithBillReadyNotifier(notify.NewWebhook(cfg.BillReadyWebhookURL, nil)))
		slog.Info("Bill ready webhook enabled", "url", cfg.BillReadyWebhookURL)
	}

	mux := http.NewServeMux()
	service.NewClaimService(store, publisher, opts...).Register(mux)

	storePath, storeHandler := billrpc.NewHandler(
		service.NewBillStoreService(store),
		connect.WithInterceptors(middleware.LoggingInterceptor()),
	)
	mux.Handle(storePath, storeHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := otelhttp.NewHandler(middleware.Logging(middleware.CORS(mux)), serviceName)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		// h2c for HTTP/2 without TLS
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openPublisher returns the Redis broker when an address is configured and
// the in-process hub otherwise.
func openPublisher(ctx context.Context, cfg config.Redis) (realtime.Publisher, func(), error) {
	if cfg.Addr == "" {
		hub := realtime.NewHub()
		slog.Info("Using in-process change feed")
		return hub, func() { hub.Close() }, nil
	}

	broker, err := redis.Dial(ctx, redis.Config{Addr: cfg.Addr, DB: cfg.DB})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("Using redis change feed", "addr", cfg.Addr, "db", cfg.DB)
	return broker, func() { broker.Close() }, nil
}
