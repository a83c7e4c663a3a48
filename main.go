package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/CrowderSoup/workboard/catalog"
	"github.com/CrowderSoup/workboard/database"
	"github.com/CrowderSoup/workboard/handlers"
	"github.com/CrowderSoup/workboard/services"
	"github.com/CrowderSoup/workboard/views"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load environment variables from .env file
	if err := services.LoadEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg, err := services.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize services
	store := database.NewStore(db)
	cat := catalog.New(store)
	composer := views.NewComposer(store, cat, views.Config{
		Location: cfg.Location,
		PageSize: cfg.DefaultPageSize,
	})
	viewService := services.NewViewService(store, composer)

	hub := services.NewHub(viewService, cfg.DefaultPageSize)
	go hub.Run(ctx)

	authService := services.NewAuthService(cfg.JWTSecret)
	listService := services.NewListService(store, cat)
	cardService := services.NewCardService(store, cat, hub)

	// Refresh relative date views when the day rolls over
	scheduler := services.NewScheduler(cfg.Location)
	refresher := services.NewRelativeDateRefresher(viewService, hub)
	if _, err := scheduler.ScheduleDaily(cfg.RolloverAt, func() {
		if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Relative date refresh failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule relative date refresh: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := handlers.NewRouter(handlers.Services{
		Auth:           authService,
		Lists:          listService,
		Cards:          cardService,
		Views:          viewService,
		Hub:            hub,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// Static file server for frontend
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./public")))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down server: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
