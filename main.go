// Command realtime-docs is the process entrypoint: load configuration, wire
// adapters, and serve the websocket document-collaboration API. Wiring is
// grounded on segfal-realtime_whiteboard/go-server/main.go's top-level
// Postgres/Redis connection setup and route registration, and graceful
// shutdown follows shiv248-kolabpad/cmd/server/main.go's signal-channel +
// context-cancellation shape with a background presence-refresh goroutine.
package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collabtext/realtime-docs/internal/auth"
	"github.com/collabtext/realtime-docs/internal/bus"
	"github.com/collabtext/realtime-docs/internal/config"
	"github.com/collabtext/realtime-docs/internal/httpapi"
	"github.com/collabtext/realtime-docs/internal/logging"
	"github.com/collabtext/realtime-docs/internal/metrics"
	"github.com/collabtext/realtime-docs/internal/ot"
	"github.com/collabtext/realtime-docs/internal/room"
	"github.com/collabtext/realtime-docs/internal/store"
	"github.com/collabtext/realtime-docs/internal/wsapi"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.NodeEnv)
	if err != nil {
		stdlog.Fatalf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	metrics.Initialize()

	db, err := store.Open(cfg.StoreURI)
	if err != nil {
		log.Fatalw("failed to open document store", "error", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalw("failed to ping document store", "error", err)
	}
	docStore := store.NewPostgresStore(db)
	if err := docStore.Migrate(context.Background()); err != nil {
		log.Fatalw("failed to migrate document store", "error", err)
	}
	log.Infow("connected to document store")

	redisClient := bus.Connect(bus.Options{Addr: cfg.BusAddr, Password: cfg.BusPassword, DB: cfg.BusDB})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalw("failed to connect to bus", "error", err)
	}
	busAdapter := bus.NewRedisAdapter(redisClient, log)
	log.Infow("connected to bus", "addr", cfg.BusAddr)

	var archiver ot.Archiver
	if cfg.ArchiveBucket != "" {
		s3Archiver, err := store.NewArchiver(cfg.ArchiveRegion, cfg.ArchiveBucket, log)
		if err != nil {
			log.Fatalw("failed to initialize archiver", "error", err)
		}
		archiver = s3Archiver
	}

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	mgr := room.NewManager(docStore, busAdapter, archiver, log, room.ServerID(),
		ot.WithMaxBuffer(cfg.OperationBufferSize),
		ot.WithMaxHistory(cfg.VersionHistorySize),
	)

	wsHandler := wsapi.NewHandler(mgr, verifier, log, wsapi.Options{
		ReadTimeout:    cfg.WSReadTimeout,
		WriteTimeout:   cfg.WSWriteTimeout,
		PingInterval:   cfg.WSPingInterval,
		OutboundBuffer: cfg.BroadcastBufferSize,
	})

	mux := httpapi.NewMux(wsHandler)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go startPresenceHeartbeat(ctx, mgr, log, cfg.CleanupInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Infow("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("graceful shutdown failed", "error", err)
		}
	}()

	log.Infow("listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalw("server exited", "error", err)
	}
}

// startPresenceHeartbeat periodically re-extends the TTL of every locally
// connected user's presence entry, so an idle-but-open session doesn't
// silently expire out of other clients' active-user lists between cursor
// moves, mirroring kolabpad's StartCleaner background ticker shape.
func startPresenceHeartbeat(ctx context.Context, mgr *room.Manager, log *logging.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.RefreshPresence(ctx)
		}
	}
}
