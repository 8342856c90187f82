package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/secureauth"
	"github.com/MrEthical07/secureauth/captcha"
	"github.com/MrEthical07/secureauth/internal/httpapi"
	"github.com/MrEthical07/secureauth/internal/notify"
	"github.com/MrEthical07/secureauth/middleware"
	promexport "github.com/MrEthical07/secureauth/metrics/export/prometheus"
	"github.com/MrEthical07/secureauth/ratelimit"
	"github.com/MrEthical07/secureauth/store/memstore"
	"github.com/MrEthical07/secureauth/store/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "secureauth-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	srvCfg, err := loadServerConfig(configPath)
	if err != nil {
		return err
	}
	authCfg, err := secureauth.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(srvCfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx, srvCfg, authCfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	proxies, err := middleware.ParseTrustedProxies(srvCfg.TrustedProxies)
	if err != nil {
		return err
	}
	router := mux.NewRouter()
	httpapi.NewHandlers(deps.engine, log, httpapi.WithTrustedProxies(proxies)).RegisterRoutes(router)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	if authCfg.Metrics.Enabled {
		h, err := promexport.Handler(deps.engine)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		router.Handle("/metrics", h).Methods(http.MethodGet)
	}

	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srvCfg.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if srvCfg.PruneInterval > 0 {
		g.Go(func() error {
			deps.pruneLoop(gctx, srvCfg.PruneInterval, srvCfg.AttemptRetention, log)
			return nil
		})
	}
	if srvCfg.MetricsLogInterval > 0 && authCfg.Metrics.Enabled {
		reporter, err := newMetricsReporter(deps.engine)
		if err != nil {
			return err
		}
		defer reporter.close()
		g.Go(func() error {
			reporter.loop(gctx, srvCfg.MetricsLogInterval, log)
			return nil
		})
	}

	err = g.Wait()
	log.Info("stopped")
	return err
}

func newLogger(cfg logConfig) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)
	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}

type dependencies struct {
	engine        *secureauth.Engine
	pruneAttempts func(ctx context.Context, before time.Time) (int64, error)
	memLimiter    *ratelimit.MemoryLimiter
	closers       []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func wire(ctx context.Context, srvCfg serverConfig, authCfg secureauth.Config, log *logrus.Logger) (*dependencies, error) {
	deps := &dependencies{}
	ok := false
	defer func() {
		if !ok {
			deps.close()
		}
	}()

	store, err := openStore(ctx, srvCfg.Store, deps)
	if err != nil {
		return nil, err
	}

	b := secureauth.New().
		WithConfig(authCfg).
		WithUserStore(store).
		WithLogger(log).
		WithNotifier(&notify.LogNotifier{
			Log:        log,
			BaseURL:    srvCfg.Notify.BaseURL,
			ShowTokens: srvCfg.Notify.ShowTokens,
		}).
		WithAuditSink(secureauth.MultiSink{
			secureauth.StoreSink{Store: store},
			secureauth.LogSink{Logger: log},
		})

	if authCfg.Captcha.Enabled {
		var opts []captcha.Option
		if srvCfg.Captcha.VerifyURL != "" {
			opts = append(opts, captcha.WithVerifyURL(srvCfg.Captcha.VerifyURL))
		}
		verifier, err := captcha.NewRecaptcha(srvCfg.Captcha.Secret, opts...)
		if err != nil {
			return nil, err
		}
		b.WithCaptcha(verifier)
	}

	switch srvCfg.Limiter.Backend {
	case "redis":
		client, err := openRedis(srvCfg.Limiter, deps, log)
		if err != nil {
			return nil, err
		}
		b.WithRedis(client)
	default:
		deps.memLimiter = ratelimit.NewMemoryLimiter(time.Now)
		b.WithLimiter(deps.memLimiter)
	}

	engine, err := b.Build()
	if err != nil {
		return nil, err
	}
	deps.engine = engine
	deps.closers = append(deps.closers, engine.Close)

	ok = true
	return deps, nil
}

func openStore(ctx context.Context, cfg storeConfig, deps *dependencies) (secureauth.UserStore, error) {
	if cfg.Driver == "memory" {
		s := memstore.New()
		deps.pruneAttempts = func(_ context.Context, before time.Time) (int64, error) {
			return int64(s.PruneAttempts(before)), nil
		}
		return s, nil
	}

	dialect, err := sqlstore.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	s, err := sqlstore.Open(dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}
	deps.closers = append(deps.closers, func() { _ = s.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.DB().PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	deps.pruneAttempts = s.PruneAttempts
	return s, nil
}

// openRedis connects to cfg.RedisAddr, or starts an in-process miniredis
// when no address is configured.
func openRedis(cfg limiterConfig, deps *dependencies, log logrus.FieldLogger) (redis.UniversalClient, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		deps.closers = append(deps.closers, mr.Close)
		addr = mr.Addr()
		log.WithField("addr", addr).Warn("no redis address configured, using in-process miniredis")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	deps.closers = append(deps.closers, func() { _ = client.Close() })
	return client, nil
}

func (d *dependencies) pruneLoop(ctx context.Context, every, retention time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.prune(ctx, retention, log)
		}
	}
}

func (d *dependencies) prune(ctx context.Context, retention time.Duration, log logrus.FieldLogger) {
	fields := logrus.Fields{}
	if d.memLimiter != nil {
		fields["limiter_records"] = d.memLimiter.Prune()
	}
	if d.pruneAttempts != nil && retention > 0 {
		n, err := d.pruneAttempts(ctx, time.Now().Add(-retention))
		if err != nil {
			log.WithError(err).Warn("prune login attempts failed")
		}
		fields["login_attempts"] = n
	}
	log.WithFields(fields).Debug("pruned")
}
