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
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/queue"
	"main/internal/store"
	"main/internal/venue"
	"main/internal/worker"
	"main/pkg/conn"
)

// The worker binary accepts orders over HTTP and executes them, pushing
// status events to Kafka. Subscriber gateways consume the topic; this
// process serves no websocket clients itself.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := ops.Load()
	if err != nil {
		logs.Errorf("load config: %+v", err)
		os.Exit(1)
	}
	if len(cfg.KafkaBrokers) == 0 {
		logs.Errorf("KAFKA_BROKERS is required in worker mode")
		os.Exit(1)
	}

	if cfg.EnableProfiler {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "order-execution/worker",
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

	orders, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logs.Errorf("open store: %+v", err)
		os.Exit(1)
	}
	defer closeStore()

	metrics := obs.NewMetrics()

	publisher, err := bus.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, metrics)
	if err != nil {
		logs.Errorf("connect kafka: %+v", err)
		os.Exit(1)
	}
	defer func() { _ = publisher.Close() }()

	q := queue.New(queue.Config{
		Capacity:    cfg.QueueCapacity,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBase,
		Metrics:     metrics,
	})
	defer q.Close()

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

	mux := api.NewMux(intake, nil)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	go func() {
		logs.Infof("worker listening on %s, publishing to %s", cfg.HTTPAddr, cfg.KafkaTopic)
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
	logs.Infof("done: enqueued=%d completed=%d retried=%d dead=%d published=%d publish_failures=%d",
		snap.EnqueuedJobs, snap.CompletedJobs, snap.RetriedJobs, snap.DeadJobs,
		snap.PublishedEvents, snap.PublishFailures)
}

func openStore(ctx context.Context, cfg ops.Config) (store.OrderStore, func(), error) {
	if cfg.PostgresDSN == "" {
		logs.Warnf("no postgres dsn configured, orders will not survive restarts")
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
