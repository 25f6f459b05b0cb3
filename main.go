// api/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"questmetrics/api/database"
	"questmetrics/api/handlers"
	"questmetrics/api/middleware"
	"questmetrics/api/store"
	"questmetrics/api/utils"
)

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	utils.InitLogger("questmetrics-api", os.Getenv("APP_ENV"))

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- PostgreSQL: users and saved funnel definitions ---
	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL")
	}
	defer dbClient.Close()

	// --- ClickHouse: raw game telemetry ---
	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ClickHouse")
	}
	defer chClient.Close()

	// --- Redis: analysis report cache (optional) ---
	var redisClient *database.RedisClient
	if os.Getenv("REDIS_ADDR") != "" {
		redisClient, err = database.NewRedisClient()
		if err != nil {
			log.Warn().Err(err).Msg("report cache unavailable, analyses recompute every request")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// --- Stores ---
	userStore := store.NewUserStore(dbClient.DB)
	funnelStore := store.NewFunnelStore(dbClient.DB)
	eventStore := store.NewEventStore(chClient)
	reportCache := store.NewReportCache(redisClient, 60*time.Second)

	// --- Handlers ---
	authHandlers := handlers.NewAuthHandlers(userStore)
	funnelHandlers := handlers.NewFunnelHandlers(funnelStore)
	analyticsHandlers := handlers.NewAnalyticsHandlers(eventStore, reportCache)

	r := gin.Default()

	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired())
		{
			protected.POST("/track", analyticsHandlers.TrackEvents)

			funnels := protected.Group("/funnels")
			{
				funnels.POST("", funnelHandlers.CreateFunnel)
				funnels.GET("", funnelHandlers.ListFunnels)
				funnels.GET("/:id", funnelHandlers.GetFunnel)
				funnels.DELETE("/:id", funnelHandlers.DeleteFunnel)
			}

			analysis := protected.Group("/analysis")
			{
				analysis.POST("/tree", analyticsHandlers.BuildTree)
				analysis.POST("/churn", analyticsHandlers.AnalyzeChurn)
				analysis.POST("/correlation", analyticsHandlers.Correlate)
				analysis.GET("/properties", analyticsHandlers.DiscoverProperties)
			}
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", port).Msg("analytics API server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exiting")
}
