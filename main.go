package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"marketdata_backend/config"
	"marketdata_backend/controllers"
	"marketdata_backend/models"
	"marketdata_backend/routes"
	"marketdata_backend/scheduler"
	"marketdata_backend/services/alerts"
	"marketdata_backend/services/archive"
	"marketdata_backend/services/cache"
	"marketdata_backend/services/marketclock"
	"marketdata_backend/services/notify"
	"marketdata_backend/services/quotes"
	"marketdata_backend/services/ratelimit"
	"marketdata_backend/services/reader"
	"marketdata_backend/services/refresher"
	"marketdata_backend/services/store"
	"marketdata_backend/services/stream"
	"marketdata_backend/services/symbols"
	"marketdata_backend/services/timeseries"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// dbInitialized tracks whether the database has been successfully
// initialized. Guarded by dbInitMutex so the /ready endpoint can check
// the state from request goroutines.
var dbInitialized bool
var dbInitMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  Market Data Backend - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up while the database initializes in the background
	setupHealthEndpoints(router)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server immediately
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize storage and the refresh pipeline in background
	var (
		jobScheduler *scheduler.Scheduler
		hub          *stream.Hub
		hist         *archive.Archive
		eventLog     *notify.MongoEventLog
	)
	go func() {
		registry, err := buildRegistry(cfg)
		if err != nil {
			log.Printf("ERROR: Symbol registry invalid: %v", err)
			return
		}

		clock, err := marketclock.New(
			cfg.MarketOpenHour, cfg.MarketOpenMinute,
			cfg.MarketCloseHour, cfg.MarketCloseMinute,
			cfg.GraceMinutes,
		)
		if err != nil {
			log.Printf("ERROR: Market clock init failed: %v", err)
			return
		}

		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		// Run database migrations
		log.Println("Running database migrations...")
		if err := models.MigrateMarketModels(db); err != nil {
			log.Printf("ERROR: Quote migration failed: %v", err)
		}
		if err := models.MigrateAlertModels(db); err != nil {
			log.Printf("ERROR: Alert migration failed: %v", err)
		}
		log.Println("Database migrations completed")

		// Redis backs the cache and the rolling time series when
		// configured; otherwise the in-memory implementations serve.
		var (
			tieredCache cache.TieredCache
			series      timeseries.Store
		)
		if cfg.RedisAddr != "" {
			redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := redisClient.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				log.Printf("Warning: Redis unavailable (%v), using in-memory cache and series", err)
				tieredCache = cache.NewMemoryCache(registry)
				series = timeseries.NewMemoryStore()
			} else {
				log.Printf("Redis connected at %s", cfg.RedisAddr)
				tieredCache = cache.NewRedisCache(redisClient, registry)
				series = timeseries.NewRedisStore(redisClient)
			}
		} else {
			tieredCache = cache.NewMemoryCache(registry)
			series = timeseries.NewMemoryStore()
		}

		hist, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			log.Printf("Warning: History archive unavailable: %v", err)
			hist = nil
		}

		eventLog, err = notify.NewMongoEventLog(cfg.MongoURI)
		if err != nil {
			log.Printf("Warning: Alert event log unavailable: %v", err)
			eventLog = nil
		}

		hub = stream.NewHub()

		notifiers := []notify.Notifier{notify.NewLogNotifier(), notify.NewStreamNotifier(hub)}
		if eventLog != nil {
			notifiers = append(notifiers, eventLog)
		}

		alertRepo := alerts.NewGormRepository(db)
		alertEngine := alerts.NewEngine(alertRepo, notify.NewComposite(notifiers...))

		governor := ratelimit.NewGovernor(cfg.RateCapPerMinute, ratelimit.DefaultWindow)
		client := quotes.NewHTTPClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, quotes.DefaultFetchTimeout)
		snapshots := store.NewSnapshotStore(db)

		orchestrator := refresher.New(registry, clock, governor, client, tieredCache, snapshots, series).
			WithAlerts(alertEngine).
			WithHub(hub)
		if hist != nil {
			orchestrator = orchestrator.WithArchive(hist)
		}

		quoteReader := reader.New(registry, tieredCache, snapshots, series, hist)

		// Mark database as ready
		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		// Setup all API routes
		routes.SetupRoutes(router, routes.Controllers{
			Quotes: controllers.NewQuoteController(quoteReader),
			Alerts: controllers.NewAlertController(alertRepo, alertEngine, registry),
			Status: controllers.NewStatusController(clock, governor, orchestrator, hub),
			Hub:    hub,
		}, cfg.JWTSecret)

		// Start background scheduler
		jobScheduler, err = scheduler.NewScheduler(registry, orchestrator)
		if err != nil {
			log.Printf("ERROR: Scheduler init failed: %v", err)
			return
		}
		go jobScheduler.Start()

		counts := registry.Counts()
		log.Printf("Application fully initialized: %d premium, %d standard, %d extended symbols",
			counts[symbols.TierPremium], counts[symbols.TierStandard], counts[symbols.TierExtended])
	}()

	gracefulShutdown(server, &jobScheduler, &hub, &hist, &eventLog)
}

func buildRegistry(cfg *config.Config) (*symbols.Registry, error) {
	return symbols.NewRegistry(
		cfg.PremiumSymbols, cfg.StandardSymbols, cfg.ExtendedSymbols,
		time.Duration(cfg.PremiumIntervalMin)*time.Minute,
		time.Duration(cfg.StandardIntervalMin)*time.Minute,
		time.Duration(cfg.ExtendedIntervalMin)*time.Minute,
	)
}

func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Market Data Backend API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(
	server *http.Server,
	jobScheduler **scheduler.Scheduler,
	hub **stream.Hub,
	hist **archive.Archive,
	eventLog **notify.MongoEventLog,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	if s := *jobScheduler; s != nil {
		s.Stop()
	}
	if h := *hub; h != nil {
		h.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if a := *hist; a != nil {
		if err := a.Close(); err != nil {
			log.Printf("Archive close error: %v", err)
		}
	}
	if m := *eventLog; m != nil {
		if err := m.Close(); err != nil {
			log.Printf("Event log close error: %v", err)
		}
	}

	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
