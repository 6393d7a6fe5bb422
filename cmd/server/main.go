package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanzidex/hanzidex/internal/handler"
	"github.com/hanzidex/hanzidex/internal/notify"
	"github.com/hanzidex/hanzidex/internal/repository"
	"github.com/hanzidex/hanzidex/internal/service"
	"github.com/hanzidex/hanzidex/internal/service/srs"
)

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.TimeKey = "timestamp"

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	zap.S().Info("logger initialized")

	if err := godotenv.Load(); err != nil {
		zap.S().Debug("load .env file", zap.Error(err))
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	postgresPort := os.Getenv("POSTGRES_PORT")
	postgresUser := os.Getenv("POSTGRES_USER")
	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	postgresDB := os.Getenv("POSTGRES_DB")
	telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	if postgresHost == "" {
		zap.S().Fatal("missing required environment variables")
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		postgresHost, postgresPort, postgresUser, postgresPassword, postgresDB)

	repo, err := repository.NewDB(dsn, 10, 20)
	if err != nil {
		zap.S().Error("connect to PostgreSQL", zap.Error(err), zap.String("host", postgresHost))
		os.Exit(1)
	}
	defer repo.Close()

	if err = repo.Up("migrations"); err != nil {
		zap.S().Error("run migrations", zap.Error(err))
		os.Exit(1)
	}

	scheduler := srs.NewScheduler(srs.NewFSRSEngine())
	svc := service.NewService(repo, scheduler)

	if telegramToken != "" {
		reminder, err := notify.NewReminder(telegramToken, repo)
		if err != nil {
			zap.S().Error("init reminder bot", zap.Error(err))
			os.Exit(1)
		}
		if err := reminder.Start(); err != nil {
			zap.S().Error("start reminder sweep", zap.Error(err))
			os.Exit(1)
		}
		defer reminder.Stop()
		zap.S().Info("reminder sweep started")
	} else {
		zap.S().Info("TELEGRAM_BOT_TOKEN not set, reminders disabled")
	}

	router := handler.NewRouter(svc)
	zap.S().Infow("listening", "addr", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		zap.S().Error("serve HTTP", zap.Error(err))
		os.Exit(1)
	}
}
