package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"portier.dev/internal/auth"
	"portier.dev/internal/httpapi"
	"portier.dev/internal/obs"
	"portier.dev/internal/tenant"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	tenantsPath := os.Getenv("PORTIER_TENANTS")
	if tenantsPath == "" {
		tenantsPath = "ops/tenants.yaml"
	}
	registry, err := tenant.Load(tenantsPath)
	if err != nil {
		log.Fatalf("load tenant registry: %v", err)
	}

	var db *sql.DB
	if dsn := os.Getenv("PORTIER_PG_DSN"); dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Sessions live in Redis when configured, otherwise in process memory
	// (single-node setups only).
	var sessions auth.SessionStore = auth.NewMemorySessionStore()
	if redisURL := os.Getenv("PORTIER_REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("parse redis url: %v", err)
		}
		sessions = auth.NewRedisSessionStore(redis.NewClient(opts))
	}

	api := httpapi.New(registry, db, sessions, httpapi.ReadyProbe{DB: db}, version)

	addr := os.Getenv("PORTIER_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting portier-api %s on %s (tenants: %d)", version, srv.Addr, len(registry.Tenants()))

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
