package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/noah-isme/backend-giftshop/internal/catalog"
	"github.com/noah-isme/backend-giftshop/internal/config"
	"github.com/noah-isme/backend-giftshop/internal/db"
	"github.com/noah-isme/backend-giftshop/internal/feed"
	"github.com/noah-isme/backend-giftshop/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger("console", "info").With().Str("component", "export-products").Logger()

	out := flag.String("out", filepath.Join("exports", "productsExport.csv"), "destination CSV file")
	baseURL := flag.String("base-url", cfg.PublicBaseURL, "storefront base URL used for product links")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, "giftshop-export")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	products, err := (&catalog.PGStore{DB: pool}).ListAllProducts(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("list products")
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		logger.Fatal().Err(err).Str("path", *out).Msg("create export directory")
	}
	f, err := os.Create(*out)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *out).Msg("create export file")
	}
	w := bufio.NewWriter(f)
	if err := feed.Write(w, products, *baseURL); err != nil {
		_ = f.Close()
		logger.Fatal().Err(err).Msg("write feed")
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		logger.Fatal().Err(err).Msg("flush feed")
	}
	if err := f.Close(); err != nil {
		logger.Fatal().Err(err).Msg("close export file")
	}
	logger.Info().Int("products", len(products)).Str("path", *out).Msg("products exported")
}
