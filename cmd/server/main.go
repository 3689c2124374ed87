package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/api"
	"main/internal/bus"
	"main/internal/engine"
	"main/internal/gateway"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/queue"
	"main/internal/store"
	"main/internal/venue"
	"main/internal/worker"
	"main/pkg/conn"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := ops.Load()
	if err != nil {
		logs.Errorf("load config: %+v", err)
		os.Exit(1)
	}

	if cfg.EnableProfiler {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "order-execution/server",
			ServerAddress:   cfg.PyroscopeServerURL,
			Tags: map[string]string{
				"env": "local",
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("start pyroscope: %v", err)
			os.Exit(1)
		}
		defer func() { _ = profiler.Stop() }()
	}

	orders, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		logs.Errorf("open store: %+v", err)
		os.Exit(1)
	}
	defer closeStore()

	metrics := obs.NewMetrics()

	q := queue.New(queue.Config{
		Capacity:    cfg.QueueCapacity,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBase,
		Metrics:     metrics,
	})
	defer q.Close()

	registry := gateway.NewRegistry(metrics)

	var publisher bus.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := bus.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, metrics)
		if err != nil {
			logs.Errorf("connect kafka: %+v", err)
			os.Exit(1)
		}
		defer func() { _ = kp.Close() }()
		publisher = kp

		sub := bus.NewKafkaSubscriber(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic)
		defer func() { _ = sub.Close() }()
		go sub.Run(ctx, registry.Deliver)
		logs.Infof("status events flowing through kafka topic %s", cfg.KafkaTopic)
	} else {
		broker := bus.NewBroker(0, metrics)
		defer broker.Close()
		go broker.Run(ctx, registry.Deliver)
		publisher = broker
	}

	router := venue.NewMockRouter(venue.MockConfig{Fees: venue.DefaultFees()}, venue.NewPriceTable())
	eng := engine.New(orders, router, publisher, engine.Config{
		Venues:            cfg.Venues,
		SlippageTolerance: decimal.NewFromFloat(cfg.SlippageTolerance),
		BuildDelay:        cfg.BuildDelay,
	})

	pool := worker.New(q, eng, cfg.Workers)
	pool.Run(ctx)

	intake := api.NewIntake(orders, q)
	if recovered, err := intake.Recover(ctx); err != nil {
		logs.Errorf("recover unfinished orders: %+v", err)
		os.Exit(1)
	} else if recovered > 0 {
		logs.Infof("re-enqueued %d unfinished orders", recovered)
	}

	mux := api.NewMux(intake, gateway.Handler(registry))
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	go func() {
		logs.Infof("listening on %s with %d workers", cfg.HTTPAddr, cfg.Workers)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Errorf("http server: %+v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logs.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logs.Warnf("http shutdown: %v", err)
	}
	pool.Wait()

	snap := metrics.Snapshot()
	logs.Infof("done: enqueued=%d completed=%d retried=%d dead=%d published=%d delivered=%d",
		snap.EnqueuedJobs, snap.CompletedJobs, snap.RetriedJobs, snap.DeadJobs,
		snap.PublishedEvents, snap.DeliveredEvents)
}

func buildStore(ctx context.Context, cfg ops.Config) (store.OrderStore, func(), error) {
	if cfg.PostgresDSN == "" {
		logs.Info("no postgres dsn configured, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	client, err := conn.New(ctx, conn.Option{DSN: cfg.PostgresDSN})
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPostgres(client.DB())
	if err := pg.Migrate(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return pg, func() { _ = client.Close() }, nil
}
