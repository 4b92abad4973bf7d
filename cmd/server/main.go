package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/orthanc-go/orthanc/internal/cache"
	"github.com/orthanc-go/orthanc/internal/config"
	"github.com/orthanc-go/orthanc/internal/database"
	"github.com/orthanc-go/orthanc/internal/dicomcache"
	"github.com/orthanc-go/orthanc/internal/handlers"
	"github.com/orthanc-go/orthanc/internal/index"
	"github.com/orthanc-go/orthanc/internal/middleware"
	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/storage"
	"github.com/orthanc-go/orthanc/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting DICOM store")

	dbConfig := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	}
	if err := database.Connect(dbConfig); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	diskStore, err := storage.NewDiskStore(cfg.Storage.Root)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage root")
	}

	var cacheTier cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		cacheTier, err = cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Str("addr", addr).Msg("Redis dataset cache tier initialized")
	} else if cfg.Cache.Enabled {
		cacheTier = cache.NewMemoryCache()
		log.Info().Msg("In-process dataset cache tier initialized")
	}

	serverIndex, err := index.New(database.DB, diskStore, logger.Get())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server index")
	}
	defer func() {
		if err := serverIndex.Close(); err != nil {
			log.Error().Err(err).Msg("Error during server index shutdown")
		}
	}()

	datasetCache := dicomcache.New(cfg.Cache.DatasetCapacity, cacheTier, diskStore, logger.Get())

	resourceHandler := handlers.NewResourceHandler(serverIndex, diskStore, logger.Get())
	modificationHandler := handlers.NewModificationHandler(serverIndex, diskStore, datasetCache, logger.Get())
	changeHandler := handlers.NewChangeHandler(serverIndex, logger.Get())
	healthHandler := handlers.NewHealthHandler(diskStore, logger.Get())
	modalityHandler := handlers.NewModalityHandler(cfg.Dimse, logger.Get())

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/changes", changeHandler.Changes)
	r.Get("/exports", changeHandler.Exports)
	r.Get("/statistics", changeHandler.Statistics)

	r.Post("/modalities/{id}/echo", modalityHandler.Echo)
	r.Post("/modalities/{id}/query", modalityHandler.Query)

	r.Post("/tools/create-dicom", modificationHandler.CreateDicom)

	mountResourceRoutes(r, "patients", models.KindPatient, resourceHandler, modificationHandler)
	mountResourceRoutes(r, "studies", models.KindStudy, resourceHandler, modificationHandler)
	mountResourceRoutes(r, "series", models.KindSeries, resourceHandler, modificationHandler)
	mountResourceRoutes(r, "instances", models.KindInstance, resourceHandler, modificationHandler)

	r.Get("/instances/{id}/file", resourceHandler.File)
	r.Post("/instances/{id}/modify", modificationHandler.ModifyInstance)
	r.Post("/instances/{id}/anonymize", modificationHandler.AnonymizeInstance)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// mountResourceRoutes registers the plain CRUD surface for one resource
// kind -- list, get, delete -- plus the ancestor-level modify/anonymize
// routes for every kind shallower than Instance, which have their own
// single-instance routes registered separately in main.
func mountResourceRoutes(r chi.Router, path string, kind models.ResourceKind, resources *handlers.ResourceHandler, modification *handlers.ModificationHandler) {
	r.Get("/"+path, resources.List(kind))
	r.Get("/"+path+"/{id}", resources.Get(kind))
	r.Delete("/"+path+"/{id}", resources.Delete(kind))

	if kind == models.KindInstance {
		return
	}
	r.Post("/"+path+"/{id}/modify", modification.AncestorOperation(kind, false))
	r.Post("/"+path+"/{id}/anonymize", modification.AncestorOperation(kind, true))
}
