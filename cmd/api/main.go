package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"seostats.local/internal/app/seostats"
	mscache "seostats.local/internal/app/seostats/cache"
	"seostats.local/internal/app/seostats/httpapi"
	"seostats.local/internal/app/seostats/repo"
	"seostats.local/internal/app/seostats/snapshot"
	"seostats.local/internal/mozscape"
	"seostats.local/internal/platform/auth"
	platformcache "seostats.local/internal/platform/cache"
	"seostats.local/internal/platform/config"
	"seostats.local/internal/platform/db"
	"seostats.local/internal/platform/httpclient"
	"seostats.local/internal/platform/httpmiddleware"
	"seostats.local/internal/platform/httpserver"
	"seostats.local/internal/platform/logging"
	"seostats.local/internal/platform/metrics"
	"seostats.local/internal/platform/migrate"
	"seostats.local/internal/platform/ratelimit"
	"seostats.local/internal/platform/trace"
	"seostats.local/migrations"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)

	if err := cfg.ValidateMozscape(); err != nil {
		log.Fatal(err)
	}

	metrics.Init()

	if cfg.TracingEnabled {
		if shutdown := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName); shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// Mozscape
	client, err := mozscape.NewClient(cfg.MozscapeEndpoint,
		mozscape.Credentials{AccessID: cfg.MozscapeAccessID, SecretKey: cfg.MozscapeSecretKey},
		httpclient.New(cfg.MozscapeTimeout, cfg.TracingEnabled))
	if err != nil {
		log.Fatal(err)
	}

	// Redis
	var redisClient *redis.Client
	if cfg.RateLimitEnabled || cfg.CacheEnabled {
		redisClient, err = platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal(err)
		}
		defer redisClient.Close()
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	}

	opts := seostats.Options{
		Policy: seostats.QuotaPolicy{
			Key:    "quota:mozscape:" + client.AccessID(),
			Limit:  cfg.MozscapeRateLimit,
			Window: cfg.MozscapeRateWindow,
		},
	}
	if limiter != nil {
		opts.Quota = limiter
	}

	if cfg.CacheEnabled {
		localCache, err := mscache.NewLocalCache(100000, 1<<24, 5*time.Minute) // 10万条目，16MB
		if err != nil {
			log.Fatal(err)
		}
		metricsCache := mscache.NewMetricsCache(redisClient, localCache, cfg.CacheTTL)
		defer metricsCache.Close()
		opts.Cache = metricsCache
	}

	// 快照历史
	var (
		dbPool          *pgxpool.Pool
		snapshotsRepo   *repo.SnapshotsRepo
		collector       snapshot.Collector
		channelConsumer *snapshot.Consumer
		kafkaConsumer   *snapshot.KafkaConsumer
	)
	if cfg.SnapshotsEnabled {
		dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		dbPool, err = db.New(dbCtx, cfg.DBDSN)
		if err != nil {
			cancel()
			log.Fatal(err)
		}
		if err := dbPool.Ping(dbCtx); err != nil {
			cancel()
			log.Fatal(err)
		}
		cancel()
		defer dbPool.Close()
		slog.Info("数据库连接成功")

		if cfg.MigrateOnStart {
			migCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			res, err := migrate.Up(migCtx, dbPool, migrations.FS)
			cancel()
			if err != nil {
				log.Fatal(err)
			}
			slog.Info("migrations done", "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
		}

		snapshotsRepo = repo.NewSnapshotsRepo(dbPool)
		if cfg.KafkaEnabled {
			slog.Info("使用 Kafka 收集指标快照", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
			collector = snapshot.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
			kafkaConsumer = snapshot.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, snapshotsRepo)
		} else {
			slog.Info("使用 Channel 收集指标快照")
			channelCollector := snapshot.NewChannelCollector(10000)
			collector = channelCollector
			channelConsumer = snapshot.NewConsumer(snapshotsRepo, channelCollector)
		}
		opts.Collector = collector
	} else {
		slog.Warn("Snapshots disabled by config", "SNAPSHOTS_ENABLED", false)
	}

	// JWT
	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatal(err)
	}

	svc := seostats.NewService(client, opts)

	// 对外业务
	mux := http.NewServeMux()
	httpapi.RegisterPublicRoutes(mux)
	deps := httpapi.Deps{
		Service:    svc,
		Tokens:     ts,
		RateLimit:  60,
		RateWindow: time.Minute,
	}
	if snapshotsRepo != nil {
		deps.History = snapshotsRepo
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	httpapi.RegisterAPIRoutes(mux, deps)

	publicHandler := httpmiddleware.Chain(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.AccessLog(),
		httpmiddleware.Metrics(),
	)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(publicHandler, "http", otelhttp.WithSpanNameFormatter(httpmiddleware.ServerSpanName))
	}
	publicSrv := httpserver.New(cfg.Addr, cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if dbPool != nil {
			if err := dbPool.Ping(ctx); err != nil {
				http.Error(w, "DB Ping Err", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "Redis Ping Err", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})
	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	adminSrv := httpserver.New(cfg.AdminAddr, cfg, adminMux)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// consumer 要比 collector 晚结束：先 Close collector，consumer 读到关闭后刷完退出
	consumersDone := make(chan struct{})
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	go func() {
		defer close(consumersDone)
		switch {
		case kafkaConsumer != nil:
			kafkaConsumer.Run(stopCtx)
			kafkaConsumer.Close()
		case channelConsumer != nil:
			channelConsumer.Run(consumerCtx)
		}
	}()

	errch := make(chan error, 2)
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	slog.Info("seostats api started", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "version", version)

	err = <-errch
	stop()
	if err == nil {
		err = <-errch
	} else {
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
	}

	if collector != nil {
		collector.Close()
	}
	select {
	case <-consumersDone:
	case <-time.After(cfg.ShutdownTimeout):
		stopConsumers()
		<-consumersDone
	}
	stopConsumers()

	if err != nil {
		log.Fatal(err)
	}
}
