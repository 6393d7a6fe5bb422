package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hanzidex/hanzidex/internal/importer"
	"github.com/hanzidex/hanzidex/internal/repository"
)

// Seeds the item catalog from an .xlsx workbook:
//
//	go run ./cmd/seed catalog.xlsx
func main() {
	logger, err := zap.NewDevelopmentConfig().Build()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if len(os.Args) < 2 {
		zap.S().Fatal("usage: seed <catalog.xlsx>")
	}
	path := os.Args[1]

	if err := godotenv.Load(); err != nil {
		zap.S().Debug("load .env file", zap.Error(err))
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("POSTGRES_HOST"), os.Getenv("POSTGRES_PORT"), os.Getenv("POSTGRES_USER"),
		os.Getenv("POSTGRES_PASSWORD"), os.Getenv("POSTGRES_DB"))

	repo, err := repository.NewDB(dsn, 2, 4)
	if err != nil {
		zap.S().Fatal("connect to PostgreSQL", zap.Error(err))
	}
	defer repo.Close()

	if err = repo.Up("migrations"); err != nil {
		zap.S().Fatal("run migrations", zap.Error(err))
	}

	count, err := importer.New(repo).ImportFile(context.Background(), path)
	if err != nil {
		zap.S().Fatal("import catalog", zap.Error(err))
	}
	zap.S().Infow("seed complete", "items", count)
}
