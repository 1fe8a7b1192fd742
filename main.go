package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"competition-service/config"
	"competition-service/events"
	"competition-service/handlers"
	"competition-service/ledger"
	"competition-service/middleware"
	"competition-service/models"
	"competition-service/services"
	"competition-service/utils"
	"competition-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warnf("⚠️ unknown log level %q, using info", level)
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func openDatabase(cfg config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(
		&models.Competition{},
		&models.CompetitionScore{},
		&models.CreditAccount{},
		&models.CreditGrant{},
		&models.Lease{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info("✅ database connected and migrated")
	return db, nil
}

func newLedger(cfg config.LedgerConfig, db *gorm.DB) services.CreditLedger {
	if cfg.Driver == "http" {
		return ledger.NewHTTPLedger(cfg.BaseURL, cfg.Token, utils.NewHTTPClient(cfg.Timeout))
	}
	return ledger.NewDBLedger(db)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("❌ failed to load config: %v", err)
	}
	log := newLogger(cfg.LogLevel)

	db, err := openDatabase(cfg.Database, log)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var publisher services.EventPublisher = events.Noop{Log: log}
	if cfg.RabbitMQ.URL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			log.Fatalf("❌ error connecting to RabbitMQ: %v", err)
		}
		defer conn.Close()
		p, err := events.NewAMQPPublisher(conn, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			log.Fatal(err)
		}
		publisher = p
		log.WithField("exchange", cfg.RabbitMQ.Exchange).Info("✅ publishing events to RabbitMQ")
	} else {
		log.Warn("⚠️ RABBITMQ_URL not set, domain events are dropped")
	}

	var archive services.SnapshotArchiver
	if cfg.R2.Enabled() {
		a, err := utils.NewR2Archiver(ctx, cfg.R2)
		if err != nil {
			log.Fatalf("❌ failed to initialize R2 client: %v", err)
		}
		archive = a
	}

	clock := clockwork.NewRealClock()
	competitionService := services.NewCompetitionService(db, log, clock)
	submissionService := services.NewSubmissionService(db, log, clock, cfg.Competition.PreviewSize)
	leaderboardService := services.NewLeaderboardService(db, log)
	leases := services.NewLeases(db, clock, log, cfg.Workers.LeaseTTL)
	winnerService := services.NewWinnerService(db, log, clock,
		newLedger(cfg.Ledger, db), publisher, archive, leases, cfg.Competition.DefaultPrizeCredits)
	if cfg.Workers.LeaseTTL > 0 {
		winnerService.ClaimTTL = cfg.Workers.LeaseTTL
	}

	sched, err := workers.NewScheduler(ctx, clock, leases, log,
		workers.Job{
			Name:     "competition-closer",
			Interval: cfg.Workers.CloserInterval,
			Runner:   workers.NewCompetitionCloser(competitionService, log),
		},
		workers.Job{
			Name:     "fulfillment-retry",
			Interval: cfg.Workers.FulfillmentInterval,
			Runner:   workers.NewFulfillmentWorker(winnerService, log),
		},
	)
	if err != nil {
		log.Fatal(err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "competition-service",
		BodyLimit:    64 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.OriginList(), ","),
		AllowMethods: "GET,POST,PATCH,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Service-Token",
		MaxAge:       86400,
	}))
	// 🔐 Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.Server.ServiceToken, log))

	handlers.SetupCompetitionRoutes(app, &handlers.CompetitionHandler{
		Competitions: competitionService,
		Submissions:  submissionService,
		Leaderboard:  leaderboardService,
		Log:          log,
	})
	handlers.SetupAdminRoutes(app, &handlers.AdminHandler{
		Competitions: competitionService,
		Winners:      winnerService,
		Log:          log,
	}, middleware.UserContextMiddleware(cfg.AdminRoleList(), log))

	sched.Start()
	log.WithFields(logrus.Fields{
		"closer_interval":      cfg.Workers.CloserInterval,
		"fulfillment_interval": cfg.Workers.FulfillmentInterval,
	}).Info("✅ background jobs scheduled")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Infof("✅ Server running on http://localhost%s", addr)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		var errs []error
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := sched.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("❌ server stopped with error")
		os.Exit(1)
	}
	log.Info("👋 bye")
}
