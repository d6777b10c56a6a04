package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quillsync/internal/config"
	"quillsync/internal/handler"
	"quillsync/internal/middleware"
	"quillsync/internal/repository"
	"quillsync/internal/service"
	"quillsync/internal/session"
	"quillsync/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.OpenLocal(ctx, cfg.Local.DSN)
	if err != nil {
		logger.Error("failed to open local store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	client, err := kivik.New("couch", couchURL(cfg))
	if err != nil {
		logger.Error("failed to create remote client", "error", err)
		os.Exit(1)
	}

	remote := repository.NewCouchStore(client, cfg.Remote.Name, logger)
	if remote.Ping(ctx) {
		if err := remote.EnsureDatabase(ctx); err != nil {
			logger.Error("failed to prepare remote database", "error", err)
			os.Exit(1)
		}
	} else {
		// Offline start is fine; the first successful sync prepares the
		// database.
		logger.Warn("remote store unreachable at startup")
	}

	noteRepo := repository.NewNoteRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)

	sessionManager := session.NewManager(cfg.Session.TokenPath, cfg.Session.Secret, remote)
	statusTracker := service.NewStatusTracker()
	resolver := service.NewDuplicateResolver(remote, logger)

	engine := service.NewSyncEngine(
		noteRepo, categoryRepo, remote, resolver,
		sessionManager, statusTracker, cfg.Sync.DeviceID, logger,
	)
	engine.SetDebounce(cfg.Sync.Debounce)

	feed := service.NewChangeFeed(
		remote, engine, noteRepo, sessionManager,
		cfg.Sync.DeviceID, cfg.Sync.RemoteDeletePolicy, logger,
	)
	feed.SetStaleWindow(cfg.Sync.StaleWindow)
	go runFeed(ctx, feed, logger)

	noteService := service.NewNoteService(noteRepo, remote, sessionManager, logger)
	categoryService := service.NewCategoryService(categoryRepo, noteRepo, remote, sessionManager, logger)

	wsManager := websocket.NewManager(
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
		logger,
	)
	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(engine, logger))
	go wsManager.Run()
	go forwardStatus(statusTracker, wsManager)

	noteHandler := handler.NewNoteHandler(noteService)
	categoryHandler := handler.NewCategoryHandler(categoryService)
	syncHandler := handler.NewSyncHandler(engine, statusTracker)
	sessionHandler := handler.NewSessionHandler(sessionManager)
	wsHandler := handler.NewWebSocketHandler(wsManager, logger)

	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/session", sessionHandler.SignIn).Methods("POST", "OPTIONS")
	api.HandleFunc("/session", sessionHandler.SignOut).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/session", sessionHandler.Status).Methods("GET", "OPTIONS")

	api.HandleFunc("/notes", noteHandler.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/notes", noteHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/notes/{id}", noteHandler.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/notes/{id}", noteHandler.Update).Methods("PUT", "OPTIONS")
	api.HandleFunc("/notes/{id}", noteHandler.Delete).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/notes/{id}/trash", noteHandler.Trash).Methods("POST", "OPTIONS")
	api.HandleFunc("/notes/{id}/restore", noteHandler.Restore).Methods("POST", "OPTIONS")
	api.HandleFunc("/notes/{id}/lock", noteHandler.Lock).Methods("POST", "OPTIONS")
	api.HandleFunc("/notes/{id}/unlock", noteHandler.Unlock).Methods("POST", "OPTIONS")

	api.HandleFunc("/categories", categoryHandler.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/categories", categoryHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/categories/{id}", categoryHandler.Update).Methods("PUT", "OPTIONS")
	api.HandleFunc("/categories/{id}", categoryHandler.Delete).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/sync", syncHandler.Trigger).Methods("POST", "OPTIONS")
	api.HandleFunc("/sync/status", syncHandler.Status).Methods("GET", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", healthHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting quillsync daemon", "addr", addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func couchURL(cfg *config.Config) string {
	u, err := url.Parse(cfg.Remote.URL)
	if err != nil {
		return cfg.Remote.URL
	}
	u.User = url.UserPassword(cfg.Remote.User, cfg.Remote.Password)
	return u.String()
}

// runFeed keeps the change feed alive for as long as a session exists,
// backing off after failures.
func runFeed(ctx context.Context, feed *service.ChangeFeed, logger *slog.Logger) {
	const retryDelay = 10 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("change feed stopped, retrying", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

// forwardStatus pushes tracker transitions onto the websocket stream.
func forwardStatus(tracker *service.StatusTracker, manager *websocket.Manager) {
	updates, cancel := tracker.Subscribe()
	defer cancel()

	for status := range updates {
		msg, err := websocket.NewMessage(websocket.TypeStatusUpdate, &websocket.StatusPayload{
			State:        status.State,
			LastSyncTime: status.LastSyncTime,
		})
		if err != nil {
			continue
		}
		manager.Broadcast(msg)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"quillsync"}`))
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
