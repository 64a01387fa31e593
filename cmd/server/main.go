package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/aerovia/flight-booking/internal/config"
	"github.com/aerovia/flight-booking/internal/database"
	"github.com/aerovia/flight-booking/internal/handler"
	"github.com/aerovia/flight-booking/internal/lock"
	"github.com/aerovia/flight-booking/internal/pricing"
	"github.com/aerovia/flight-booking/internal/queue"
	"github.com/aerovia/flight-booking/internal/repository"
	"github.com/aerovia/flight-booking/internal/router"
	"github.com/aerovia/flight-booking/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "flight-booking").Logger()
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	// Redis backs the background-job mutex when configured; a single
	// node falls back to the database lock table.
	var mutex lock.Mutex
	if redisClient := config.NewRedisClient(); redisClient != nil {
		mutex = lock.NewRedisMutex(redisClient)
		log.Info().Msg("using redis mutex for background jobs")
	} else {
		mutex = lock.NewDBMutex(db)
		log.Info().Msg("using database mutex for background jobs")
	}

	seatRepo := repository.NewSeatRepo(db)
	holdRepo := repository.NewSeatHoldRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	requestRepo := repository.NewBookingRequestRepo(db)
	flightRepo := repository.NewFlightRepo(db)
	dlqRepo := repository.NewDeadLetterRepo(db)

	publisher := queue.NewPublisher(cfg.AMQPURL)
	notifier := service.NewQueueNotifier(publisher, cfg.NotificationQueue)

	holdSvc := service.NewHoldService(db, seatRepo, holdRepo, flightRepo, cfg.HoldTTL, log)
	store := service.NewBookingStore(db, bookingRepo, holdRepo, seatRepo, flightRepo, pricing.NewTablePolicy(), cfg.PaymentTTL, cfg.CheckInCutoff, log)
	bookingSvc := service.NewBookingService(requestRepo, holdSvc, store, notifier, cfg.LedgerTTL, log)
	sweeper := service.NewSweeper(holdSvc, store, log)
	dlqSvc := service.NewDLQService(dlqRepo, publisher, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewConsumer(cfg.AMQPURL, cfg.JobQueue, cfg.JobRetryBudget, dlqSvc, log)
	consumer.Handle(queue.JobSweepExpired, func(ctx context.Context, _ queue.JobMessage) error {
		return lock.ExecuteWithMutex(ctx, mutex, "jobs:sweep", time.Minute, func(ctx context.Context) error {
			_, err := sweeper.SweepOnce(ctx, time.Now().UTC())
			return err
		})
	})
	consumer.Handle(queue.JobDLQCleanup, func(ctx context.Context, _ queue.JobMessage) error {
		return lock.ExecuteWithMutex(ctx, mutex, "jobs:dlq-cleanup", time.Minute, func(ctx context.Context) error {
			_, err := dlqSvc.Cleanup(ctx, cfg.DLQRetention)
			return err
		})
	})
	consumer.Handle(queue.JobLedgerCleanup, func(ctx context.Context, _ queue.JobMessage) error {
		return lock.ExecuteWithMutex(ctx, mutex, "jobs:ledger-cleanup", time.Minute, func(ctx context.Context) error {
			n, err := requestRepo.DeleteExpired(ctx, time.Now().UTC())
			if err == nil && n > 0 {
				log.Info().Int64("deleted", n).Msg("idempotency ledger cleanup")
			}
			return err
		})
	})
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("job consumer stopped")
		}
	}()
	go scheduleSweeps(ctx, publisher, cfg.JobQueue, cfg.HoldTTL, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.RegisterRoutes(e)
	router.RegisterBooking(e, handler.NewBookingHandler(bookingSvc, holdSvc, sweeper, seatRepo, log))
	router.RegisterDLQ(e, handler.NewDLQHandler(dlqSvc, log))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(addr); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// scheduleSweeps periodically enqueues sweep and cleanup jobs.  The
// interval follows the hold TTL so lapsed holds return to the market
// promptly; cleanups ride along once an hour.
func scheduleSweeps(ctx context.Context, pub *queue.Publisher, jobQueue string, holdTTL time.Duration, log zerolog.Logger) {
	sweepEvery := holdTTL / 3
	if sweepEvery < time.Minute {
		sweepEvery = time.Minute
	}
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()
	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	enqueue := func(jobType string) {
		job := queue.JobMessage{JobID: jobType + "-" + time.Now().UTC().Format("20060102T150405"), Type: jobType}
		if err := pub.PublishJob(ctx, jobQueue, job); err != nil {
			log.Error().Err(err).Str("job_type", jobType).Msg("failed to enqueue job")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			enqueue(queue.JobSweepExpired)
		case <-cleanup.C:
			enqueue(queue.JobDLQCleanup)
			enqueue(queue.JobLedgerCleanup)
		}
	}
}
