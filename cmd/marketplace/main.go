package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazaar/cmd/marketplace/config"
	"bazaar/internal/coordinator"
	"bazaar/internal/customer"
	"bazaar/internal/dispatch"
	"bazaar/internal/journal"
	"bazaar/internal/observability"
	"bazaar/internal/realtime"
	"bazaar/internal/saga"

	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("marketplace error: %v", err)
	}
}

func run(ctx context.Context) error {
	sagaCfg, err := config.LoadSaga()
	if err != nil {
		return err
	}
	topo, err := config.LoadTopology()
	if err != nil {
		return err
	}
	genCfg, err := config.LoadGenerator()
	if err != nil {
		return err
	}
	obsCfg := config.LoadObservability()

	store := saga.NewStore(log.Printf)
	metrics := observability.NewMetrics(func() int64 { return int64(store.Len()) })

	channels := make(map[string]dispatch.Channel, len(topo.Sellers))
	for id, addr := range topo.Sellers {
		base := dispatch.NewTCPChannel(id, addr, sagaCfg.CallTimeout, log.Printf)
		breaker := dispatch.NewCircuitBreaker(dispatch.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 2 * sagaCfg.CallTimeout,
		})
		channels[id] = dispatch.NewReliableChannel(base, breaker, dispatch.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
		})
	}
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	dispatcher := dispatch.New(dispatch.Config{
		MarketplaceID: sagaCfg.MarketplaceID,
		Routes:        topo.Routes,
		CallTimeout:   sagaCfg.CallTimeout,
		Stats:         metrics,
		Logf:          log.Printf,
	}, channels, store)

	hub := realtime.NewHub(log.Printf)
	go hub.Run()
	defer hub.Stop()

	publisher, cleanupJournal, err := buildJournal(ctx)
	if err != nil {
		return err
	}
	defer cleanupJournal()

	coord := coordinator.New(coordinator.Config{
		CallTimeout:         sagaCfg.CallTimeout,
		OrderWaitMultiplier: sagaCfg.OrderWaitMultiplier,
		SweepPeriod:         sagaCfg.SweepPeriod,
		HardDeadline:        sagaCfg.HardDeadline,
	}, coordinator.Deps{
		Store:      store,
		Dispatcher: dispatcher,
		Notify:     hub.Notify,
		Journal:    publisher,
		Stats:      metrics,
		Logf:       log.Printf,
	})
	go coord.RunReaper(ctx)

	var servers []*http.Server
	if obsCfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler(metrics))
		servers = append(servers, startHTTPServer(obsCfg.MetricsAddr, mux))
		log.Printf("metrics on http://%s/metrics", obsCfg.MetricsAddr)
	}
	if obsCfg.NotifyAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", hub.Handler())
		servers = append(servers, startHTTPServer(obsCfg.NotifyAddr, mux))
		log.Printf("notifications on ws://%s/ws", obsCfg.NotifyAddr)
	}

	generator := customer.New(customer.Config{
		Catalog:           topo.Catalog(),
		Delay:             genCfg.OrderDelay,
		DuplicateLineProb: genCfg.DuplicateLineProb,
	}, coord, log.Printf)

	log.Printf("marketplace %s running with %d sellers, %d products", sagaCfg.MarketplaceID, len(topo.Sellers), len(topo.Routes))
	go generator.Run(ctx)

	<-ctx.Done()

	metrics.MarkShutdown(int64(store.Len()))
	coord.Wait()

	// Final pass over anything stranded past the hard deadline, so the
	// rollback cancels go out before the channels close.
	sweepCtx, cancelSweep := context.WithTimeout(context.Background(), sagaCfg.CallTimeout)
	coord.Sweep(sweepCtx)
	cancelSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

func startHTTPServer(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server %s: %v", addr, err)
		}
	}()
	return srv
}

// buildJournal wires the saga journal: always the process log, plus
// Redis when REDIS_URL is set.
func buildJournal(ctx context.Context) (journal.Publisher, func(), error) {
	cleanup := func() {}

	redisCfg, err := config.LoadRedis()
	if err != nil {
		return nil, cleanup, err
	}
	logPub := journal.LogPublisher{Logf: log.Printf}
	if redisCfg.URL == "" {
		return logPub, cleanup, nil
	}

	opts, err := redis.ParseURL(redisCfg.URL)
	if err != nil {
		return nil, cleanup, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, cleanup, err
	}
	cleanup = func() { client.Close() }

	redisPub := journal.NewRedisJournal(
		redisClientAdapter{client},
		redisCfg.Stream,
		redisCfg.EventTTL,
		redisCfg.StreamMaxLen,
	)
	return journal.NewFanoutPublisher(logPub, redisPub), cleanup, nil
}

// redisClientAdapter narrows *redis.Client to the journal's pipeline
// interface.
type redisClientAdapter struct {
	client *redis.Client
}

func (a redisClientAdapter) Pipeline() journal.RedisPipeliner {
	return a.client.Pipeline()
}
