package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mmynk/splitclaim/internal/billrpc"
	"github.com/mmynk/splitclaim/internal/config"
	"github.com/mmynk/splitclaim/internal/gateway"
	"github.com/mmynk/splitclaim/internal/identity"
	"github.com/mmynk/splitclaim/internal/identity/bolt"
	"github.com/mmynk/splitclaim/internal/models"
	"github.com/mmynk/splitclaim/internal/realtime"
	"github.com/mmynk/splitclaim/internal/realtime/redis"
	"github.com/mmynk/splitclaim/internal/snapshot"
	"github.com/mmynk/splitclaim/internal/telemetry"
	"github.com/mmynk/splitclaim/pkg/logging"
)

const (
	serviceName  = "splitclaim-cli"
	pollInterval = 5 * time.Second
)

var errUsage = errors.New("invalid arguments")

type app struct {
	cfg      *config.Client
	out      io.Writer
	identity *identity.Provider
	me       *models.User
	closers  []func()
}

func newApp(ctx context.Context, out io.Writer) (*app, error) {
	cfg, err := config.LoadClient(ctx)
	if err != nil {
		return nil, &gateway.ConfigError{Message: err.Error()}
	}
	logging.Setup(cfg.LogLevel)

	a := &app{cfg: cfg, out: out}

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		slog.Warn("Tracing disabled", "error", err)
	} else {
		a.closers = append(a.closers, func() { shutdownTracing(context.Background()) })
	}

	if cfg.MetricsAddr != "" {
		_, stop, err := serveMetrics(cfg.MetricsAddr)
		if err != nil {
			slog.Warn("Metrics disabled", "error", err)
		} else {
			a.closers = append(a.closers, stop)
		}
	}

	// The identity never changes once created, so it is read once and the
	// file is not kept open while the command runs.
	a.identity = identity.NewProvider(bolt.NewFileStore(cfg.IdentityPath), nil)
	a.me, _ = a.identity.Resolve(ctx)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return fmt.Errorf("%w: register <name>", errUsage)
	}

	if a.me != nil {
		fmt.Fprintf(a.out, "Already registered as %s (%s)\n", a.me.Name, a.me.ID)
		return nil
	}

	user, err := a.identity.Register(ctx, name)
	if err != nil {
		return err
	}
	a.me = user
	fmt.Fprintf(a.out, "Registered as %s (%s)\n", user.Name, user.ID)
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if a.me == nil {
		return gateway.ErrNoIdentity
	}
	fmt.Fprintf(a.out, "%s (%s)\n", a.me.Name, a.me.ID)
	return nil
}

func (a *app) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: show <bill-id>", errUsage)
	}

	hub := realtime.NewHub()
	defer hub.Close()

	ctrl, err := a.controller(ctx, hub)
	if err != nil {
		return err
	}
	if err := ctrl.Activate(ctx, args[0]); err != nil {
		return err
	}
	defer ctrl.Close()

	render(a.out, ctrl.Snapshot(), a.me)
	return nil
}

func (a *app) claim(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: claim <bill-id> <item-id>", errUsage)
	}

	client := gateway.New(a.cfg.APIURL, gateway.WithHTTPClient(a.httpClient()))
	result, err := client.SubmitClaim(ctx, args[0], args[1], a.me)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Claim %s; %d on this item now\n", result.Status, result.NewCount)
	return nil
}

// watch follows the bill until interrupted. Without Redis there is no change
// feed, so the snapshot is refetched on a timer instead.
func (a *app) watch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: watch <bill-id>", errUsage)
	}

	channel, live, err := a.channel(ctx)
	if err != nil {
		return err
	}

	user := a.me
	ctrl, err := a.controller(ctx, channel, snapshot.WithOnChange(func(s snapshot.Snapshot) {
		fmt.Fprintln(a.out)
		render(a.out, s, user)
	}))
	if err != nil {
		return err
	}
	if err := ctrl.Activate(ctx, args[0]); err != nil {
		return err
	}
	defer ctrl.Close()

	if live {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := ctrl.Refresh(ctx); err != nil && !errors.Is(err, snapshot.ErrSuperseded) && ctx.Err() == nil {
				slog.Warn("Refresh failed", "error", err)
			}
		}
	}
}

func (a *app) controller(ctx context.Context, channel realtime.Channel, opts ...snapshot.Option) (*snapshot.Controller, error) {
	if a.cfg.StoreURL == "" {
		return nil, &gateway.ConfigError{Message: "bill store URL is not set (SPLITCLAIM_STORE_URL or SPLITCLAIM_API_URL)"}
	}
	reader := billrpc.NewClient(a.httpClient(), a.cfg.StoreURL)
	opts = append([]snapshot.Option{snapshot.WithUser(a.me)}, opts...)
	return snapshot.New(reader, channel, opts...), nil
}

// channel opens the Redis change feed when configured. The bool reports
// whether the feed is live.
func (a *app) channel(ctx context.Context) (realtime.Channel, bool, error) {
	if a.cfg.Redis.Addr == "" {
		hub := realtime.NewHub()
		a.closers = append(a.closers, func() { hub.Close() })
		return hub, false, nil
	}

	broker, err := redis.Dial(ctx, redis.Config{Addr: a.cfg.Redis.Addr, DB: a.cfg.Redis.DB})
	if err != nil {
		return nil, false, err
	}
	a.closers = append(a.closers, func() { broker.Close() })
	return broker, true, nil
}

func (a *app) httpClient() *http.Client {
	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
