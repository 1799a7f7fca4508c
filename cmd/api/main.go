package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"rolegate.org/internal/auth"
	"rolegate.org/internal/httpapi"
	"rolegate.org/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	// .env is a development convenience; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("ROLEGATE_PG_DSN")
	if dsn == "" {
		log.Fatal("ROLEGATE_PG_DSN is required")
	}
	secret := os.Getenv("ROLEGATE_TOKEN_SECRET")
	if secret == "" {
		log.Fatal("ROLEGATE_TOKEN_SECRET is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	svc, err := auth.NewService(auth.NewPGStore(db))
	if err != nil {
		log.Fatalf("init service: %v", err)
	}

	api := httpapi.New(svc, db.PingContext, httpapi.Config{
		TokenSecret:    secret,
		AllowedOrigins: splitList(os.Getenv("ROLEGATE_ALLOWED_ORIGINS")),
		SecureCookies:  envBool("ROLEGATE_SECURE_COOKIES", true),
		Version:        version,
		Commit:         commit,
	})

	addr := os.Getenv("ROLEGATE_ADDR")
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

	log.Printf("Starting rolegate-api %s on %s", version, srv.Addr)

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
	_ = db.Close()
	log.Println("Stopped")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
