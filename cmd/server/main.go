package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tilestock/internal/config"
	"tilestock/internal/httpapi"
	"tilestock/internal/service"
	"tilestock/internal/session"
	"tilestock/internal/store"
	pgstore "tilestock/internal/store/postgres"
	sqlitestore "tilestock/internal/store/sqlite"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with the embedded fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("open sqlite database: %v", err)
		}
		repo = db
		closers = append(closers, db.Close)
		log.Printf("repository: sqlite (%s)", cfg.SQLitePath)
	}

	registry := session.Registry(session.NewMemoryRegistry())
	if cfg.RedisAddr != "" {
		redisRegistry, err := session.NewRedisRegistry(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("redis unavailable (%v), using in-memory session registry", err)
		} else {
			registry = redisRegistry
			closers = append(closers, redisRegistry.Close)
			log.Println("session registry: redis")
		}
	} else {
		log.Println("session registry: in-memory")
	}

	secret := cfg.AuthSecret
	if len(secret) < 32 {
		// Tokens signed with an ephemeral secret do not survive a restart.
		secret = randomSecret()
		log.Println("WARNING: AUTH_SECRET unset or shorter than 32 characters; using an ephemeral secret, all sessions reset on restart")
	}

	svc := service.New(repo, service.Options{RestockOnBillDelete: cfg.RestockOnBillDelete})
	if err := svc.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminPassword); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	sessions := session.NewManager(secret, time.Duration(cfg.SessionTTLMinutes)*time.Minute, registry, cfg.SecureCookies)
	api, err := httpapi.New(svc, sessions, cfg.ShopName)
	if err != nil {
		log.Fatalf("init http api: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("tile stock app listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("generate secret: %v", err)
	}
	return hex.EncodeToString(buf)
}
