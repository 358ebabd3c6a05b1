package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmorriss/larder/internal/backup"
	"github.com/tmorriss/larder/internal/config"
	"github.com/tmorriss/larder/internal/handler"
	"github.com/tmorriss/larder/internal/middleware"
	"github.com/tmorriss/larder/internal/push"
	"github.com/tmorriss/larder/internal/relay"
	"github.com/tmorriss/larder/internal/share"
	"github.com/tmorriss/larder/internal/store"
)

// Server wires the stores, the relay hub, and the HTTP surface together.
type Server struct {
	db            *sql.DB
	hub           *relay.Hub
	syncH         *handler.SyncHandler
	shareH        *handler.ShareHandler
	pushH         *handler.PushHandler
	backupH       *handler.BackupHandler
	snapshots     *store.SnapshotStore
	backupManager *backup.Manager
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) (*Server, error) {
	hub := relay.NewHub(logger.With("component", "relay"))

	snapshots := store.NewSnapshotStore(db)
	if err := snapshots.Init(time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}
	shares := store.NewShareStore(db)
	pushStore := store.NewPushStore(db)

	registry := share.NewRegistry(shares, snapshots, hub, logger.With("component", "share"))

	var pushH *handler.PushHandler
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		pushSvc := push.NewService(push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.PushSubscriber,
		})
		fanout := push.NewFanout(pushSvc, pushStore, logger.With("component", "push"))
		hub.OnItemAdded(fanout.HandleItemAdded)
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.BackupEndpoint,
			Bucket:    cfg.BackupBucket,
			Region:    cfg.BackupRegion,
			AccessKey: cfg.BackupAccessKey,
			SecretKey: cfg.BackupSecretKey,
		},
		Passphrase: cfg.BackupPassphrase,
		Interval:   cfg.BackupInterval,
	}, snapshots, logger.With("component", "backup"))

	return &Server{
		db:            db,
		hub:           hub,
		syncH:         handler.NewSyncHandler(snapshots, logger.With("component", "sync")),
		shareH:        handler.NewShareHandler(registry, logger.With("component", "share_handler")),
		pushH:         pushH,
		backupH:       handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),
		snapshots:     snapshots,
		backupManager: backupMgr,
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}, nil
}

// Hub returns the relay hub.
func (s *Server) Hub() *relay.Hub {
	return s.hub
}

// BackupManager returns the backup manager for lifecycle control.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.syncH.Health)
	mux.HandleFunc("GET /api/data", s.syncH.GetData)
	mux.HandleFunc("POST /api/sync", s.syncH.Sync)

	generateLimit := middleware.RateLimit(s.rateLimiter, 30, time.Minute)
	mux.Handle("POST /api/share/generate", generateLimit(http.HandlerFunc(s.shareH.Generate)))
	mux.HandleFunc("GET /api/share/{type}/{token}", s.shareH.Get)
	mux.HandleFunc("PUT /api/share/{type}/{token}", s.shareH.Update)

	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	}

	mux.HandleFunc("GET /api/backup/status", s.backupH.Status)
	mux.HandleFunc("POST /api/backup/run", s.backupH.Run)

	mux.HandleFunc("GET /ws", relay.HandleWebSocket(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}
