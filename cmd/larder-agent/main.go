package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tmorriss/larder/internal/database"
	"github.com/tmorriss/larder/internal/live"
	"github.com/tmorriss/larder/internal/localstore"
	"github.com/tmorriss/larder/internal/logging"
	"github.com/tmorriss/larder/internal/syncagent"
)

// larder-agent is the device-side daemon: it keeps a durable local copy
// of the dataset, syncs it opportunistically against the home server,
// and (optionally) holds a live relay session for shared rooms.
func main() {
	baseURL := getenv("LARDER_SERVER_URL", "http://localhost:3001")
	dbPath := getenv("LARDER_AGENT_DB_PATH", "larder-agent.db")
	interval := getenvInt("LARDER_SYNC_INTERVAL_SECONDS", 300)
	rooms := os.Getenv("LARDER_LIVE_ROOMS") // comma-separated "list:<token>" names

	logger := logging.Setup(getenv("LARDER_LOG_LEVEL", "info"), getenv("LARDER_LOG_FORMAT", "text"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open local database: %v", err)
	}
	defer db.Close()

	store := localstore.New(db)
	agent := syncagent.New(store, syncagent.Config{
		BaseURL:  baseURL,
		Interval: time.Duration(interval) * time.Second,
	}, logger.With("component", "sync_agent"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One eager sync at startup, then the periodic loop.
	if agent.Online(ctx) {
		if err := agent.SyncOnce(ctx); err != nil {
			logger.Warn("initial sync failed", "error", err)
		}
	}
	go agent.Run(ctx)

	if rooms != "" {
		wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws"
		session := live.NewSession(wsURL, live.Handlers{
			OnUpdate: func(payload json.RawMessage) {
				logger.Info("shared entity updated remotely", "bytes", len(payload))
			},
			OnItemAdded: func(ev live.ItemAddedEvent) {
				logger.Info("item added remotely", "list", ev.ListName, "item", ev.ItemName)
			},
		}, logger.With("component", "live"))

		for _, room := range strings.Split(rooms, ",") {
			if room = strings.TrimSpace(room); room != "" {
				session.Subscribe(ctx, room)
			}
		}
		go func() {
			if err := session.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("live session ended", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
