package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/socialforge/outreach/internal/alerts"
	"github.com/socialforge/outreach/internal/blockdetect"
	"github.com/socialforge/outreach/internal/composer"
	"github.com/socialforge/outreach/internal/config"
	"github.com/socialforge/outreach/internal/media"
	"github.com/socialforge/outreach/internal/newsfeed"
	"github.com/socialforge/outreach/internal/pkg/distlock"
	"github.com/socialforge/outreach/internal/proxypool"
	"github.com/socialforge/outreach/internal/storage/evidence"
	"github.com/socialforge/outreach/internal/storage/postgres"
	"github.com/socialforge/outreach/internal/transport"
	"github.com/socialforge/outreach/internal/warmup"
	"github.com/socialforge/outreach/internal/worker"
)

func main() {
	log.Println("Starting SocialForge Outreach Worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Database connection
	db, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	// Redis is mandatory for the worker: the warm-up send windows live
	// there and have no Postgres fallback.
	if !cfg.Redis.Enabled || cfg.Redis.URL == "" {
		log.Fatalf("Redis is required for warm-up send windows (set REDIS_URL)")
	}
	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.Redis.URL); err == nil {
		redisClient = redis.NewClient(opts)
	} else {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
	}
	defer redisClient.Close()

	pingCtx, pingCancel = context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping Redis: %v", err)
	}
	pingCancel()
	log.Println("Connected to Redis")

	// Browser automation gateway
	if cfg.Gateway.BaseURL == "" {
		log.Fatalf("Gateway base URL is required (set GATEWAY_BASE_URL)")
	}
	gateway := transport.NewGateway(transport.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout(),
	})
	log.Printf("Automation gateway configured (timeout: %s)", cfg.Gateway.Timeout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	campaignRepo := postgres.NewCampaignRepo(db)
	runRepo := postgres.NewRunRepo(db)
	leadRepo := postgres.NewLeadRepo(db)
	accountRepo := postgres.NewAccountRepo(db)
	blockRepo := postgres.NewBlockEventRepo(db)
	statsRepo := postgres.NewStatsRepo(db)
	tenantRepo := postgres.NewTenantRepo(db)
	proxyRepo := postgres.NewProxyRepo(db)
	templateRepo := postgres.NewTemplateSetRepo(db)
	mediaRepo := postgres.NewMediaRepo(db)

	// Block evidence archive; detections still classify without it.
	var detectorOpts []blockdetect.Option
	if cfg.Evidence.Enabled && cfg.Evidence.S3Bucket != "" {
		archive, err := evidence.NewArchive(ctx, cfg.Evidence.S3Bucket, cfg.Evidence.S3Region, cfg.Evidence.GetAWSProfile())
		if err != nil {
			log.Printf("Warning: Evidence archive init failed, snapshots disabled: %v", err)
		} else {
			detectorOpts = append(detectorOpts, blockdetect.WithEvidenceStore(archive))
			log.Printf("Evidence archive initialized (bucket: %s)", cfg.Evidence.S3Bucket)
		}
	} else {
		log.Println("Evidence archive not configured (snapshots disabled)")
	}
	detector := blockdetect.NewDetector(detectorOpts...)

	// Message composer, with tenant template sets and optional news hooks.
	composerOpts := []composer.Option{composer.WithTemplateSource(templateRepo)}
	if cfg.Newsfeed.Enabled {
		poller := newsfeed.NewPoller(tenantRepo, newsfeed.WithInterval(cfg.Newsfeed.Interval()))
		go poller.Run(ctx)
		composerOpts = append(composerOpts, composer.WithNewsSource(poller))
		log.Printf("Newsfeed hooks enabled (interval: %dm)", cfg.Newsfeed.IntervalMinutes)
	}

	lockFactory := distlock.NewFactory(redisClient, db, cfg.Worker.LockTTL())

	deps := worker.Deps{
		Campaigns: campaignRepo,
		Runs:      runRepo,
		Leads:     leadRepo,
		Accounts:  accountRepo,
		Blocks:    blockRepo,
		Stats:     statsRepo,
		Tenants:   tenantRepo,
		Warmup:    warmup.NewManager(warmup.NewWindowCounter(redisClient), accountRepo),
		Proxies:   proxypool.NewManager(proxyRepo),
		Detector:  detector,
		Transport: gateway,
		Composer:  composer.New(composerOpts...),
		Locks:     lockFactory,
	}

	// Media resolver, so campaigns with attachments get hosted URLs.
	if cfg.Media.Enabled && cfg.Media.S3Bucket != "" {
		region := cfg.Media.S3Region
		if region == "" {
			region = "us-east-1"
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			log.Printf("Warning: AWS config for media resolver failed: %v", err)
		} else {
			deps.Media = media.NewService(mediaRepo, s3.NewFromConfig(awsCfg), cfg.Media.S3Bucket, cfg.Media.BaseURL)
			log.Printf("Media resolver initialized (bucket: %s)", cfg.Media.S3Bucket)
		}
	}

	// SES operator alerts for block events and campaign terminations.
	if cfg.Alerts.Enabled && cfg.Alerts.From != "" && len(cfg.Alerts.Operators) > 0 {
		deps.Alerts = alerts.NewMailer(alerts.Config{
			AccessKey: cfg.Alerts.AccessKey,
			SecretKey: cfg.Alerts.SecretKey,
			Region:    cfg.Alerts.Region,
			From:      cfg.Alerts.From,
			Operators: cfg.Alerts.Operators,
		})
		log.Printf("Operator alerts enabled (%d recipients)", len(cfg.Alerts.Operators))
	} else {
		log.Println("Operator alerts not configured")
	}

	runner := worker.NewRunner(deps, worker.Config{
		ProxyRequired: os.Getenv("PROXY_REQUIRED") == "true",
	})

	engine := worker.NewEngine(campaignRepo, runner, lockFactory, worker.EngineConfig{
		PollInterval:  cfg.Worker.PollInterval(),
		MaxConcurrent: cfg.Worker.MaxConcurrentCampaigns,
		LockTTL:       cfg.Worker.LockTTL(),
	})
	if err := engine.Start(); err != nil {
		log.Fatalf("Failed to start campaign engine: %v", err)
	}
	log.Printf("Campaign engine started (poll: %s, max concurrent: %d)",
		cfg.Worker.PollInterval(), cfg.Worker.MaxConcurrentCampaigns)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")

	// Stop claims first so in-flight campaigns checkpoint and release
	// their locks, then cancel the background pollers.
	engine.Stop()
	cancel()

	log.Println("Worker stopped")
}
