package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lockstep/cmd/server/config"
	"lockstep/internal/bus"
	"lockstep/internal/collaborators"
	"lockstep/internal/fulfillment"
	"lockstep/internal/observability"
	"lockstep/internal/realtime"

	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// sagaEvents are the event kinds the dispatcher reacts to. ShipmentRequested
// is published for external consumers only.
var sagaEvents = []string{
	fulfillment.EventOrderPlaced,
	fulfillment.EventCreditReserved,
	fulfillment.EventInvoiceRequested,
	fulfillment.EventInvoicePaid,
	fulfillment.EventShipmentDelivered,
}

var allEvents = append(append([]string(nil), sagaEvents...), fulfillment.EventShipmentRequested)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context) error {
	metrics := observability.NewMetrics()

	store, cleanupStore, err := buildInstanceStore(ctx, os.Getenv("DATABASE_URL"), log.Printf)
	if err != nil {
		return err
	}
	defer cleanupStore()

	msgBus := bus.New()
	defer msgBus.Close()

	sagaCfg, err := config.LoadSaga()
	if err != nil {
		return err
	}

	credit := collaborators.NewCreditService(sagaCfg.CreditLimit)
	credit.Register(msgBus)
	invoicing := collaborators.NewInvoicingService(msgBus)
	invoicing.Register(msgBus)
	shipping := collaborators.NewShippingService(msgBus)
	shipping.Register(msgBus)
	orderStatus := collaborators.NewOrderStatusService()
	orderStatus.Register(msgBus)

	relCfg, err := fulfillment.LoadReliabilityConfig()
	if err != nil {
		return err
	}
	gateway := relCfg.BuildGateway(
		newInstrumentedGateway(msgBus, metrics),
		metrics.AddRateLimitWait,
	)

	saga := fulfillment.NewSaga(gateway, msgBus, store, log.Printf)
	dispatcher := fulfillment.NewDispatcher(store, saga, fulfillment.Hooks{
		OnOutcome: func(status fulfillment.Status) {
			switch status {
			case fulfillment.StatusCompleted:
				metrics.AddCompleted()
			case fulfillment.StatusDenied:
				metrics.AddDenied()
			case fulfillment.StatusFailed:
				metrics.AddFailed()
			}
		},
		OnDropped: func(string) { metrics.AddDropped() },
	}, log.Printf)
	dispatcher.Start(ctx, sagaCfg.ShardCount)
	msgBus.Subscribe(dispatcher.Handle, sagaEvents...)

	cleanupRelay, err := buildEventRelay(ctx, msgBus, log.Printf)
	if err != nil {
		return err
	}
	defer cleanupRelay()

	hub := realtime.NewHub()
	go hub.Run()
	defer hub.Stop()
	progress := realtime.NewProgressPublisher(realtime.NewHubBroadcaster(hub), log.Printf)
	msgBus.Subscribe(progress.Handle, allEvents...)

	grpcCfg, err := config.LoadGRPC()
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", grpcCfg.Addr)
	if err != nil {
		return err
	}

	limiter := fulfillment.NewRateLimiter(grpcCfg.RateLimitInterval, grpcCfg.RateLimitBurst, metrics.AddRateLimitWait)
	server := grpcpkg.NewServer(
		grpcpkg.UnaryInterceptor(rateLimitUnaryInterceptor(limiter, metrics)),
		grpcpkg.StreamInterceptor(rateLimitStreamInterceptor(limiter, metrics)),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if env := os.Getenv("APP_ENV"); env != "production" {
		reflection.Register(server)
		log.Println("gRPC reflection enabled (APP_ENV=", env, ")")
	}

	log.Printf("fulfillment saga server running on %s", grpcCfg.Addr)
	obsSrv, obsErr := startObservabilityServer(metrics, hub)
	if obsErr != nil {
		return obsErr
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		server.GracefulStop()
		if obsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = obsSrv.Shutdown(shutdownCtx)
		}
		dispatcher.Wait()
		return nil
	case err := <-errCh:
		return err
	}
}

func startObservabilityServer(metrics *observability.Metrics, hub *realtime.Hub) (*http.Server, error) {
	cfg, err := config.LoadObservability()
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))
	mux.Handle("/ws", progressFeedHandler(hub))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("observability server error: %v", err)
		}
	}()

	return srv, nil
}
