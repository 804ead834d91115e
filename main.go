package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cardpricer/worker/config"
	"cardpricer/worker/internal/feed"
	"cardpricer/worker/internal/ingest"
	"cardpricer/worker/internal/scraper"
	"cardpricer/worker/internal/store"
	"cardpricer/worker/logger"
	"cardpricer/worker/services/cache"
	"cardpricer/worker/services/publisher"
	"cardpricer/worker/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("mode", cfg.Mode).
		Str("schedule", cfg.CronSchedule).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	feeds := feed.NewClient(cfg.ProductsURL, cfg.PricesURL)

	var pub ingest.Publisher
	if services.Publisher != nil {
		pub = services.Publisher
	}
	merger := ingest.NewMerger(feeds, services.Store, pub)

	var syncer worker.CrossRefSyncer
	if cfg.CTraderToken != "" {
		syncer = feed.NewCTraderClient(cfg.CTraderAPIURL, cfg.CTraderToken, services.Store)
	}

	done := make(chan error, 1)

	switch cfg.Mode {
	case config.ModeScrape:
		go func() {
			done <- runScrapeBatch(ctx, cfg, services)
		}()

	case config.ModeIngest, config.ModeBoth:
		w := worker.NewWorker(ctx, merger, syncer, cfg.CronSchedule)
		if err := w.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start ingestion schedule")
		}
		defer w.Stop()

		if cfg.RunOnStart {
			go w.RunOnce()
		}
		if cfg.Mode == config.ModeBoth {
			go func() {
				done <- runScrapeBatch(ctx, cfg, services)
			}()
		}
	}

	// Wait for shutdown signal or completion of a one-shot batch
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
	case err := <-done:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Scrape batch exited with error")
		} else {
			log.Info().Msg("Scrape batch finished")
		}
		if cfg.Mode == config.ModeScrape {
			break
		}
		// Keep the scheduler alive in combined mode
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}

	log.Info().Msg("Shutting down gracefully...")
}

// runScrapeBatch runs one pass over the stored catalog with the browser
func runScrapeBatch(ctx context.Context, cfg *config.Config, services *Services) error {
	rotator := scraper.NewRotator(cfg.ProxyList)
	browser := scraper.NewChromeBrowser(rotator)
	s := scraper.NewScraper(browser, services.Store, services.Cache, scraper.Options{
		BaseURL:       cfg.MarketBaseURL,
		BlockCooldown: cfg.BlockCooldown,
	})

	_, err := s.ScrapeAll(ctx, cfg.ScrapeLimit)
	return err
}

// Services holds all the initialized services
type Services struct {
	Store     *store.Store
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		s.Store.Close(context.Background())
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	st, err := store.Connect(ctx, store.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	if err != nil {
		return nil, err
	}
	services.Store = st

	// Cache and publisher are optional
	if cfg.MemcacheAddr != "" {
		services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}

	if cfg.RedisAddr != "" {
		services.Publisher = publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLength,
		)
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return services, nil
}
