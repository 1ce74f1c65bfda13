package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"messenger/internal/chat"
	"messenger/internal/config"
	grpcserver "messenger/internal/grpc"
	"messenger/internal/httpapi"
	"messenger/internal/logging"
	"messenger/internal/tcpfeed"
	"messenger/internal/udpnotify"
	"messenger/internal/websocket"
	"messenger/pkg/database"
	"messenger/pkg/models"
)

const (
	exitOK     = 0
	exitConfig = 1
	exitStart  = 2
	exitRun    = 3
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	adminIDs, _ := cfg.AdminIDs() // checked by Validate
	log := logging.New(cfg.LogLevel).With("app", cfg.AppName)
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tạo thư mục data trước khi mở DB
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return exitStart, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return exitStart, err
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return exitStart, err
	}
	seedUsers(db, cfg.SeedUsersPath, log)

	// Chat service
	repo := chat.NewRepo(db)
	svc := chat.NewService(repo, log.With("component", "chat"))

	hub := websocket.NewHub(log.With("component", "hub"))
	go hub.Run(ctx)

	feedCh := make(chan models.MessageEvent, cfg.FeedBuffer)
	feed := tcpfeed.New(cfg.TCPFeedAddr, feedCh, log.With("component", "tcpfeed"))
	if err := feed.Listen(); err != nil {
		return exitStart, fmt.Errorf("tcp feed: %w", err)
	}
	go func() {
		if err := feed.Serve(); err != nil {
			log.Error("tcp feed stopped", "err", err)
		}
	}()

	notifier := udpnotify.New(cfg.UDPNotifyAddr, log.With("component", "udpnotify"))
	if err := notifier.Listen(); err != nil {
		return exitStart, fmt.Errorf("udp notify: %w", err)
	}
	go func() {
		if err := notifier.Serve(); err != nil {
			log.Error("udp notify stopped", "err", err)
		}
	}()

	// gRPC health
	health := grpcserver.NewServer(db, log.With("component", "grpc"))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return exitStart, fmt.Errorf("listen grpc: %w", err)
	}
	go health.Watch(ctx, cfg.HealthInterval)
	go func() {
		log.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := health.GRPC.Serve(lis); err != nil {
			log.Error("gRPC server stopped", "err", err)
		}
	}()

	router := httpapi.NewRouter(httpapi.Deps{
		DB:           db,
		Chats:        svc,
		Hub:          hub,
		Feed:         feedCh,
		Notifier:     notifier,
		Secret:       []byte(cfg.SecretKey),
		TokenTTL:     cfg.TokenTTL,
		SecureCookie: cfg.Production(),
		StaticDir:    cfg.StaticDir,
		AdminIDs:     adminIDs,
		WS: websocket.Options{
			SendBuffer:     cfg.WSSendBuffer,
			MaxMessageSize: cfg.WSMaxMessage,
		},
		Log: log.With("component", "http"),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	notifier.Broadcast(udpnotify.TypeLifecycle, "server started")

	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok {
			code, runErr = exitRun, fmt.Errorf("http server: %w", err)
		}
	}

	notifier.Broadcast(udpnotify.TypeLifecycle, "server stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Warn("hub shutdown", "err", err)
	}
	health.Stop()
	_ = feed.Close()
	_ = notifier.Close()

	log.Info("server stopped")
	return code, runErr
}

// seedUsers loads fixture users when the file exists. Failures are logged
// and do not stop the server.
func seedUsers(db *sql.DB, path string, log *slog.Logger) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		log.Warn("seed users file not found; skip seeding", "path", path)
		return
	}
	users, err := database.LoadUsersFromJSON(path)
	if err != nil {
		log.Error("load seed users", "path", path, "err", err)
		return
	}
	n, err := database.SeedUsers(db, users)
	if err != nil {
		log.Error("seed users", "err", err)
		return
	}
	log.Info("seeded users", "count", n, "path", path)
}
