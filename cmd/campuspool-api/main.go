// README: Entry point; loads config, wires stores, lock, event stream and identity provider, serves HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"campuspool/internal/config"
	"campuspool/internal/events"
	httptransport "campuspool/internal/http"
	"campuspool/internal/http/middleware"
	"campuspool/internal/infra"
	"campuspool/internal/lock"
	"campuspool/internal/modules/ride"
	"campuspool/internal/modules/sos"
	"campuspool/internal/modules/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := infra.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("campuspool-api exited")
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	var (
		rideRepo ride.Repository
		sosRepo  sos.Repository
	)
	switch cfg.Store {
	case "postgres":
		db, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		rideRepo = ride.NewStore(db)
		sosRepo = sos.NewStore(db)
	default:
		log.Warn("using in-memory store; data is lost on restart")
		rideRepo = ride.NewMemoryStore()
		sosRepo = sos.NewMemoryStore()
	}

	var rdb *redis.Client
	if cfg.Lock.Mode == "redis" {
		if rdb, err = infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			return err
		}
		defer rdb.Close()
	}
	locker := newLocker(cfg.Lock, rdb, log)

	publisher, err := newPublisher(cfg.Events)
	if err != nil {
		return err
	}
	defer publisher.Close()

	acct := ride.NewAccountant(rideRepo)
	deps := ride.Deps{Locker: locker, Publisher: publisher, Log: log}
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	gin.SetMode(gin.ReleaseMode)
	srv := httptransport.NewServer(httptransport.ServerDeps{
		Rides:    ride.NewRideService(rideRepo, acct, deps),
		Requests: ride.NewRequestService(rideRepo, acct, deps),
		SOS: sos.NewService(sosRepo, rideRepo,
			sos.WithLocker(locker),
			sos.WithPublisher(publisher),
			sos.WithLogger(log),
		),
		Views:     view.NewComposer(acct, rideRepo),
		Verifier:  verifier,
		Log:       log,
		RateLimit: limiter,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go sweepLimiters(ctx, limiter)

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":   cfg.HTTP.Addr,
			"store":  cfg.Store,
			"lock":   cfg.Lock.Mode,
			"events": cfg.Events.Provider,
			"auth":   cfg.Auth.Provider,
		}).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (infra.TokenVerifier, error) {
	if cfg.Provider == "firebase" {
		return infra.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	}
	return infra.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
}

func newLocker(cfg config.LockConfig, rdb *redis.Client, log *logrus.Logger) lock.Locker {
	if rdb != nil {
		return lock.NewRedis(rdb, cfg.TTL, cfg.Wait, log)
	}
	return lock.NewLocal()
}

func newPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Provider {
	case "kafka":
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "nsq":
		return events.NewNSQPublisher(cfg.NSQAddr, cfg.NSQTopic)
	default:
		return events.Nop{}, nil
	}
}

func sweepLimiters(ctx context.Context, rl *middleware.RateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep(30 * time.Minute)
		}
	}
}
