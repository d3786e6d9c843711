package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/civic-console/apiclient"
	"github.com/jrsteele09/civic-console/auth"
	"github.com/jrsteele09/civic-console/internal/config"
	"github.com/jrsteele09/civic-console/metrics"
	"github.com/jrsteele09/civic-console/query"
	"github.com/jrsteele09/civic-console/resources"
	"github.com/jrsteele09/civic-console/server"
	"github.com/jrsteele09/civic-console/storage"
	"github.com/jrsteele09/civic-console/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running console")
	}
	log.Info().Msg("Console stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	// .env is optional
	_ = godotenv.Load()

	c, err := config.Load(os.Getenv("CONSOLE_CONFIG"))
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	kv, closeKV, err := openStorage(c)
	if err != nil {
		return err
	}
	defer closeKV()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheus(registry)
	if err != nil {
		return errors.Wrap(err, "metrics.NewPrometheus")
	}

	tokens := token.NewStore(kv, token.WithNamespace(c.GetStorageNamespace()))
	client, err := apiclient.New(c.GetBaseURL(), tokens,
		apiclient.WithRequestTimeout(c.GetRequestTimeout()),
		apiclient.WithRefreshTimeout(c.GetRefreshTimeout()),
		apiclient.WithRecorder(recorder),
	)
	if err != nil {
		return err
	}

	cache := query.New(
		query.WithPolicy(cachePolicy(c)),
		query.WithRecorder(recorder),
	)
	svc, err := resources.NewService(client, cache)
	if err != nil {
		return err
	}
	session, err := auth.NewSession(client, tokens,
		auth.WithProfileFetcher(svc.CurrentUser),
		auth.WithLogoutHook(cache.Clear),
	)
	if err != nil {
		return err
	}
	// A failed refresh leaves nothing cached and nobody signed in.
	client.OnSessionCleared(cache.Clear)
	client.OnSessionCleared(session.Reset)

	handler, err := server.New(c, session, svc, server.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	if err != nil {
		return err
	}
	client.OnSessionCleared(handler.ReleaseViews)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hydrate(ctx, session)
	go sweep(ctx, cache, c.GetSweepInterval())

	srv := &http.Server{Addr: c.GetListenAddr(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(srv)
	}()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	cancel()
	returnError = shutdown(srv)
	cache.Wait()
	return returnError
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func openStorage(c config.StorageConfig) (storage.KV, func(), error) {
	switch c.GetStorageBackend() {
	case config.StorageMemory:
		return storage.NewMemory(), func() {}, nil
	case config.StorageRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, errors.Wrapf(err, "redis ping %s", c.GetRedisAddr())
		}
		return storage.NewRedis(rdb), func() { _ = rdb.Close() }, nil
	default:
		kv, err := storage.NewFile(c.GetStoragePath())
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {}, nil
	}
}

func cachePolicy(c config.CacheConfig) query.Policy {
	return query.Policy{
		StaleTime:          c.GetStaleTime(),
		ExpireTime:         c.GetExpireTime(),
		Retry:              c.GetRetryCount(),
		RetryWaitMin:       c.GetRetryWaitMin(),
		RetryWaitMax:       c.GetRetryWaitMax(),
		RefetchOnFocus:     c.GetRefetchOnFocus(),
		RefetchOnReconnect: c.GetRefetchOnReconnect(),
	}
}

// hydrate restores a persisted session before the first request is served.
func hydrate(ctx context.Context, session *auth.Session) {
	user, err := session.FetchCurrentUser(ctx)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("could not confirm the stored session")
	case user != nil:
		log.Info().Str("user_id", user.ID).Msg("session restored")
	default:
		log.Info().Msg("no stored session, sign in required")
	}
}

func sweep(ctx context.Context, cache *query.Cache, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := cache.Sweep(); n > 0 {
				log.Debug().Int("evicted", n).Msg("cache sweep")
			}
		}
	}
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("Console listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
