package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/najem/internal/db"
	"github.com/erazemk/najem/internal/relay"
)

func main() {
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)

	var dbPath string
	fs.StringVar(&dbPath, "db", "najem.sqlite3", "")
	fs.StringVar(&dbPath, "d", "najem.sqlite3", "")

	var addr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: relay [flags]

Serves the current renter's address as plain text.

Flags:
  -d, -db <path>          SQLite database written by najem (default: najem.sqlite3)
  -a, -addr <host:port>   listen address (default: :$PORT, or :3000)
  -h, -help               show this help and exit
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if addr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "3000"
		}
		addr = ":" + port
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	database, err := db.OpenReadOnly(dbPath)
	if err != nil {
		slog.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer database.Close()

	server := &http.Server{
		Addr:              addr,
		Handler:           relay.Handler(database),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("relay forced to shutdown", "error", err)
		}
	}()

	slog.Info("relay started", "addr", addr, "db", dbPath)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("relay error", "error", err)
		os.Exit(1)
	}
}
