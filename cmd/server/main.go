package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/socialforge/outreach/internal/analyst"
	"github.com/socialforge/outreach/internal/api"
	"github.com/socialforge/outreach/internal/auth"
	"github.com/socialforge/outreach/internal/config"
	"github.com/socialforge/outreach/internal/media"
	"github.com/socialforge/outreach/internal/newsfeed"
	"github.com/socialforge/outreach/internal/service/campaign"
	"github.com/socialforge/outreach/internal/storage/postgres"
	"github.com/socialforge/outreach/internal/warehouse"
	"github.com/socialforge/outreach/internal/warmup"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  SocialForge Outreach Server (cmd/server)                  ║")
	log.Println("║  Tenant/campaign control API + background exporters        ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	// Postgres is the one hard dependency; everything else degrades.
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	tenantRepo := postgres.NewTenantRepo(db)
	leadRepo := postgres.NewLeadRepo(db)
	accountRepo := postgres.NewAccountRepo(db)
	proxyRepo := postgres.NewProxyRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	runRepo := postgres.NewRunRepo(db)
	blockRepo := postgres.NewBlockEventRepo(db)
	statsRepo := postgres.NewStatsRepo(db)
	templateRepo := postgres.NewTemplateSetRepo(db)
	mediaRepo := postgres.NewMediaRepo(db)

	// Redis backs the warm-up send windows. The server only reads warm-up
	// state; without Redis those routes answer 503.
	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
		} else {
			redisClient = redis.NewClient(opts)
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed, warm-up routes degraded: %v", err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Println("Redis connected")
		}
		pingCancel()
	} else {
		log.Println("Redis not configured, warm-up routes will answer 503")
	}

	deps := api.Deps{
		Tenants:   tenantRepo,
		Leads:     leadRepo,
		Accounts:  accountRepo,
		Proxies:   proxyRepo,
		Blocks:    blockRepo,
		Stats:     statsRepo,
		Runs:      runRepo,
		Templates: templateRepo,
		Campaigns: campaign.NewService(campaignRepo),
	}

	// Warm-up reader needs the Redis send windows.
	if redisClient != nil {
		deps.Warmup = warmup.NewManager(warmup.NewWindowCounter(redisClient), accountRepo)
	}

	// Media attachment pipeline (S3-hosted images).
	var s3Client *s3.Client
	mediaBucket := ""
	if cfg.Media.Enabled && cfg.Media.S3Bucket != "" {
		region := cfg.Media.S3Region
		if region == "" {
			region = "us-east-1"
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			log.Printf("Warning: AWS config for media pipeline failed: %v", err)
		} else {
			s3Client = s3.NewFromConfig(awsCfg)
			mediaBucket = cfg.Media.S3Bucket
			deps.Media = media.NewService(mediaRepo, s3Client, mediaBucket, cfg.Media.BaseURL)
			log.Printf("Media pipeline initialized (bucket: %s)", mediaBucket)
		}
	} else {
		log.Println("Media pipeline not configured (disabled or missing bucket)")
	}

	// Bedrock incident analyst.
	if cfg.Analyst.Enabled {
		briefer, err := analyst.New(ctx, cfg.Analyst.Region, cfg.Analyst.ModelID)
		if err != nil {
			log.Printf("Warning: Failed to initialize incident analyst: %v", err)
		} else {
			deps.Analyst = briefer
			log.Printf("Incident analyst initialized (model: %s, region: %s)", cfg.Analyst.ModelID, cfg.Analyst.Region)
		}
	} else {
		log.Println("Incident analyst not configured")
	}

	// Per-tenant industry newsfeed, feeds the /api/news endpoint.
	if cfg.Newsfeed.Enabled {
		poller := newsfeed.NewPoller(tenantRepo, newsfeed.WithInterval(cfg.Newsfeed.Interval()))
		go poller.Run(ctx)
		deps.News = poller
		log.Printf("Newsfeed poller started (interval: %dm)", cfg.Newsfeed.IntervalMinutes)
	} else {
		log.Println("Newsfeed poller not configured")
	}

	// Snowflake stats export for BI dashboards.
	if cfg.Snowflake.Enabled && (cfg.Snowflake.User != "" || cfg.Snowflake.ConnectionString != "") {
		whCfg := warehouse.Config{
			Account:   cfg.Snowflake.Account,
			User:      cfg.Snowflake.User,
			Password:  cfg.Snowflake.Password,
			Database:  cfg.Snowflake.Database,
			Schema:    cfg.Snowflake.Schema,
			Warehouse: cfg.Snowflake.Warehouse,
		}
		if cfg.Snowflake.ConnectionString != "" {
			parsed := warehouse.ParseConnectionString(cfg.Snowflake.ConnectionString)
			if whCfg.Account == "" {
				whCfg.Account = parsed.Account
			}
			if whCfg.User == "" {
				whCfg.User = parsed.User
			}
			if whCfg.Password == "" {
				whCfg.Password = parsed.Password
			}
			if whCfg.Database == "" {
				whCfg.Database = parsed.Database
			}
			if whCfg.Schema == "" {
				whCfg.Schema = parsed.Schema
			}
		}
		whClient, err := warehouse.NewClient(whCfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Snowflake client: %v", err)
		} else {
			exporter := warehouse.NewExporter(whClient, statsRepo)
			go exporter.Run(ctx)
			log.Printf("Warehouse exporter started (database: %s.%s)", whCfg.Database, whCfg.Schema)
		}
	} else {
		log.Println("Warehouse exporter not configured (disabled or missing credentials)")
	}

	// Google OAuth SSO.
	var authManager *auth.Manager
	if cfg.Auth.Enabled && cfg.Auth.GoogleClientID != "" {
		baseURL := fmt.Sprintf("http://%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		if envURL := os.Getenv("AUTH_BASE_URL"); envURL != "" {
			baseURL = envURL
		}
		authManager = auth.NewManager(&cfg.Auth, baseURL)

		// Pre-flight: validate OAuth credentials before accepting traffic,
		// so misconfiguration surfaces now, not at first user login.
		log.Println("Validating Google OAuth credentials...")
		if err := authManager.ValidateCredentials(ctx); err != nil {
			log.Fatalf("OAuth pre-flight FAILED: %v", err)
		}
		authManager.StartSessionCleanup(ctx)
		log.Printf("Google OAuth enabled for domain: %s (callback: %s/auth/callback)", cfg.Auth.AllowedDomain, baseURL)
	} else {
		log.Println("Authentication disabled")
	}

	handlers := api.NewHandlers(deps)
	healthChecker := api.NewHealthChecker(db, redisClient, s3Client, mediaBucket)
	server := api.NewServer(handlers, healthChecker, authManager)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized, server is ready")

	<-done
	log.Println("Shutting down...")

	// Stop background pollers and exporters
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if redisClient != nil {
		redisClient.Close()
	}

	log.Println("Server stopped")
}
