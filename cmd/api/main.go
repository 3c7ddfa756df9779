package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	httpadp "loan-proposal-service/internal/adapter/http"
	"loan-proposal-service/internal/adapter/repository/mysql"
	"loan-proposal-service/internal/config"
	"loan-proposal-service/internal/infrastructure/cache"
	"loan-proposal-service/internal/infrastructure/db"
	"loan-proposal-service/internal/infrastructure/docgen"
	"loan-proposal-service/internal/infrastructure/esign"
	"loan-proposal-service/internal/infrastructure/httpclient"
	"loan-proposal-service/internal/infrastructure/payments"
	"loan-proposal-service/internal/infrastructure/storage"
	"loan-proposal-service/internal/observability"
	"loan-proposal-service/internal/usecase/fee"
	"loan-proposal-service/internal/usecase/formalization"
	proposaluc "loan-proposal-service/internal/usecase/proposal"
	storageuc "loan-proposal-service/internal/usecase/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := observability.InitLogger(cfg.App.Name, cfg.App.LogLevel, cfg.App.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	observability.RegisterMetrics()

	gdb, err := db.OpenGorm(db.Options{Driver: cfg.DB.Driver, DSN: cfg.DSN(), LogLevel: cfg.DB.LogLevel})
	if err != nil {
		logger.Fatal().Err(err).Msg("database")
	}
	if err := db.AutoMigrate(gdb); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.OpenRedis(ctx, cache.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer rdb.Close()

	blobs, err := storage.NewS3Store(ctx, storage.S3Options{
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		KeyPrefix: cfg.S3.KeyPrefix,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("s3")
	}
	bank, err := payments.NewBank(payments.Options{
		AccessToken: cfg.Bank.AccessToken,
		Mock:        cfg.Bank.Mock,
		Method:      cfg.Bank.Method,
	}, logger.With().Str("component", "bank").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("bank")
	}
	timeout := httpclient.WithTimeout(cfg.HTTPTimeout())
	docs := docgen.New(cfg.DocGen.URL, cfg.DocGen.Token, timeout)
	signer := esign.New(cfg.ESign.URL, cfg.ESign.Token, timeout)
	locker := cache.NewLocker(rdb)

	proposals := mysql.NewProposalRepository(gdb)
	transitions := mysql.NewTransitionRepository(gdb)
	instruments := mysql.NewInstrumentRepository(gdb)
	booklets := mysql.NewBookletRepository(gdb)
	tasks := mysql.NewTaskRepository(gdb)
	tx := mysql.NewGormUoW(gdb)

	fees := fee.NewCalculator(mysql.NewProductRepository(gdb), proposals, logger.With().Str("component", "fee").Logger())
	engine := proposaluc.NewUsecase(proposals, transitions, tx, fees, logger.With().Str("component", "proposal").Logger())
	orch := formalization.NewUsecase(formalization.Deps{
		Proposals:   proposals,
		Instruments: instruments,
		Tasks:       tasks,
		Docs:        docs,
		Signer:      signer,
		Bank:        bank,
		Locker:      locker,
		Engine:      engine,
		Log:         logger.With().Str("component", "formalization").Logger(),
		LockTTL:     cfg.LockTTL(),
	})
	engine.AttachDispatcher(orch)
	stor := storageuc.NewUsecase(storageuc.Deps{
		Proposals:   proposals,
		Instruments: instruments,
		Booklets:    booklets,
		Blobs:       blobs,
		Bank:        bank,
		Docs:        docs,
		Locker:      locker,
		Log:         logger.With().Str("component", "storage").Logger(),
		LockTTL:     cfg.LockTTL(),
		Concurrency: cfg.Formalization.SyncConcurrency,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.Recover(), observability.RequestLogger(logger), observability.RequestMetrics())

	httpadp.RegisterRoutes(e, httpadp.Handlers{
		Health:        httpadp.NewHandler(),
		Proposals:     httpadp.NewProposalHandler(engine),
		Formalization: httpadp.NewFormalizationHandler(orch),
		Storage:       httpadp.NewStorageHandler(stor),
	}, httpadp.RouterConfig{
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		WebhookSecret:  []byte(cfg.Auth.WebhookSecret),
		Redis:          rdb,
		IdempotencyTTL: cfg.IdempotencyTTL(),
	})

	go func() {
		addr := ":" + cfg.App.Port
		logger.Info().Str("addr", addr).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	logger.Info().Msg("stopped")
}
