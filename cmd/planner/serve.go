package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/collection-planner/coordinator"
	"github.com/signalsfoundry/collection-planner/internal/api"
	"github.com/signalsfoundry/collection-planner/internal/clock"
	"github.com/signalsfoundry/collection-planner/internal/logging"
	"github.com/signalsfoundry/collection-planner/internal/observability"
	"github.com/signalsfoundry/collection-planner/internal/store"
	"github.com/signalsfoundry/collection-planner/oracle"
	"github.com/signalsfoundry/collection-planner/orchestrator"
)

var serveFlags struct {
	configPath    string
	listenAddr    string
	metricsAddr   string
	redisAddr     string
	maxConcurrent int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the planning HTTP service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.configPath, "config", "configs/planner.yaml", "Path to the oracle YAML configuration")
	serveCmd.Flags().StringVar(&serveFlags.listenAddr, "listen-addr", ":8080", "HTTP address the planning API listens on")
	serveCmd.Flags().StringVar(&serveFlags.metricsAddr, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	serveCmd.Flags().StringVar(&serveFlags.redisAddr, "redis-addr", "", "Redis address for the plan cache; empty uses the in-memory cache")
	serveCmd.Flags().IntVar(&serveFlags.maxConcurrent, "max-concurrent", orchestrator.DefaultMaxConcurrent, "Concurrent optimization slot count")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := logging.NewFromEnv()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	plannerMetrics, err := observability.NewPlannerCollector(nil)
	if err != nil {
		return err
	}
	oracleMetrics, err := observability.NewOracleCollector(nil)
	if err != nil {
		return err
	}

	oracleCfg, err := oracle.LoadConfig(serveFlags.configPath)
	if err != nil {
		return err
	}
	client, err := oracle.NewClient(oracleCfg,
		oracle.WithLogger(log),
		oracle.WithMetrics(oracleMetrics),
	)
	if err != nil {
		return err
	}

	cache, closeCache := buildCache(ctx, log)
	defer closeCache()

	orch := orchestrator.New(client, cache,
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(plannerMetrics),
		orchestrator.WithMaxConcurrent(serveFlags.maxConcurrent),
	)
	coord := coordinator.New(orch,
		coordinator.WithLogger(log),
		coordinator.WithMetrics(plannerMetrics),
	)

	metricsSrv := serveMetrics(serveFlags.metricsAddr, plannerMetrics, log)

	apiSrv := &http.Server{
		Addr:    serveFlags.listenAddr,
		Handler: api.NewServer(coord, api.WithLogger(log)),
	}
	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(context.Background(), "planning API server exited", logging.Err(err))
		}
	}()
	log.Info(ctx, "planning API listening", logging.String("addr", serveFlags.listenAddr))

	<-ctx.Done()
	log.Info(context.Background(), "shutting down planner")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return coord.Close(shutdownCtx)
}

// buildCache selects the plan cache backend from the flags. The returned
// closer releases the Redis connection when one was opened.
func buildCache(ctx context.Context, log logging.Logger) (store.PlanStore, func()) {
	if serveFlags.redisAddr == "" {
		return store.NewMemory(store.DefaultTTL, clock.NewReal()), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: serveFlags.redisAddr})
	log.Info(ctx, "using redis plan cache", logging.String("addr", serveFlags.redisAddr))
	return store.NewRedis(rdb, store.DefaultTTL, "plan:"), func() { _ = rdb.Close() }
}

func serveMetrics(addr string, collector *observability.PlannerCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
