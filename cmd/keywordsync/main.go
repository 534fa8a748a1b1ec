// Package main is the keywordsync worker: one keyword research run as an
// isolated process. The server spawns it per job and forwards its stdout
// and stderr into the job log, so all progress goes to plain stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rankpulse/rankpulse/internal/cache"
	"github.com/rankpulse/rankpulse/internal/config"
	"github.com/rankpulse/rankpulse/internal/google"
	"github.com/rankpulse/rankpulse/internal/keywords"
	"github.com/rankpulse/rankpulse/internal/store"
	"github.com/rankpulse/rankpulse/pkg/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: "+err.Error())
		os.Exit(1)
	}
}

func run() error {
	var (
		userIDStr      = flag.String("user-id", "", "user the run belongs to (required)")
		serviceSlug    = flag.String("service-slug", "", "restrict to one service")
		locationSlug   = flag.String("only-loc-slug", "", "restrict to one location")
		top            = flag.Int("top", 0, "overall keyword cap (0 uses config)")
		perLoc         = flag.Int("per-loc", 0, "per-location keyword cap (0 uses config)")
		delayMS        = flag.Int64("delay-ms", -1, "delay between locations in ms (-1 uses config)")
		brand          = flag.String("brand", "", "brand phrase to exclude (empty uses config)")
		saveIdeas      = flag.Bool("save-ideas", false, "persist per-location ideas")
		updateServices = flag.Bool("update-services", false, "merge top keywords into services")
	)
	flag.Parse()

	userID, err := uuid.Parse(*userIDStr)
	if err != nil {
		return fmt.Errorf("-user-id must be a UUID: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Google.AdsConfigured() {
		return fmt.Errorf("google ads credentials are not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	// The geo cache degrades gracefully without redis, so a cache failure
	// only costs extra API lookups.
	var geoCache cache.Cache
	if redisCache, err := cache.NewRedisCache(cfg.Redis.URL); err == nil {
		defer redisCache.Close()
		geoCache = redisCache
	}

	pgStore := store.NewPostgresStore(pool)
	tokens := google.NewTokenSource(ctx, cfg.Google)
	ads := google.NewAdsClient(google.DefaultAdsEndpoint, tokens,
		retry.Policy{
			Retries:   cfg.Keywords.Retries,
			BaseDelay: cfg.Keywords.BaseDelay,
			Notify: func(attempt, retries int, delay time.Duration, err error) {
				fmt.Printf("WARN retry %d/%d in %s: %v\n", attempt, retries, delay.Round(time.Millisecond), err)
			},
		},
		cfg.Google)
	geo := keywords.NewGeoResolver(ads, geoCache, cfg.Google.CountryCode)

	opts := keywords.Options{
		UserID:           userID,
		ServiceSlug:      *serviceSlug,
		LocationSlug:     *locationSlug,
		PerLocationLimit: cfg.Keywords.PerLocationLimit,
		OverallLimit:     cfg.Keywords.OverallLimit,
		Delay:            cfg.Keywords.Delay,
		Brand:            cfg.Keywords.Brand,
		SaveIdeas:        *saveIdeas,
		UpdateServices:   *updateServices,
	}
	if *top > 0 {
		opts.OverallLimit = *top
	}
	if *perLoc > 0 {
		opts.PerLocationLimit = *perLoc
	}
	if *delayMS >= 0 {
		opts.Delay = time.Duration(*delayMS) * time.Millisecond
	}
	if *brand != "" {
		opts.Brand = *brand
	}

	logf := func(format string, args ...any) {
		fmt.Printf(format+"\n", args...)
	}

	return keywords.New(pgStore, ads, geo).Run(ctx, opts, logf)
}
