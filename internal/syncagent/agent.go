// Package syncagent decides when a device talks to the sync endpoint and
// applies the reconciled result to the local store.
package syncagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tmorriss/larder/internal/localstore"
	"github.com/tmorriss/larder/internal/model"
)

const (
	probeTimeout = 3 * time.Second
	syncTimeout  = 30 * time.Second
	maxRetries   = 3
)

// Config configures the agent.
type Config struct {
	BaseURL  string
	Interval time.Duration
}

// Agent orchestrates opportunistic syncs for one device.
type Agent struct {
	store  *localstore.Store
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(store *localstore.Store, cfg Config, logger *slog.Logger) *Agent {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Agent{
		store:  store,
		cfg:    cfg,
		client: &http.Client{Timeout: syncTimeout},
		logger: logger,
	}
}

// Online probes the server's health endpoint with a short deadline.
// A timeout means "offline", never a surfaced failure.
func (a *Agent) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type syncResponse struct {
	Data      *model.AppData `json:"data"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SyncOnce runs a single reconciliation round: send the local snapshot,
// persist whatever the server merged back, and advance lastSynced to the
// server's new updatedAt. Transient failures retry with capped
// exponential backoff; on a failed sync the prior local state stays
// untouched.
func (a *Agent) SyncOnce(ctx context.Context) error {
	data, lastSynced, err := a.store.Load()
	if err != nil {
		return fmt.Errorf("load local snapshot: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"data":       data,
		"lastSynced": lastSynced,
	})
	if err != nil {
		return fmt.Errorf("marshal sync request: %w", err)
	}

	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(500*time.Millisecond))
	var result syncResponse
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/sync", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("server returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("sync rejected with %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if result.Data == nil {
		return fmt.Errorf("sync: empty response")
	}

	if err := a.store.Save(result.Data, &result.UpdatedAt); err != nil {
		return fmt.Errorf("save merged snapshot: %w", err)
	}

	a.logger.Info("synced", "updated_at", result.UpdatedAt, "lists", len(result.Data.Lists))
	return nil
}

// Run syncs on a fixed cadence until the context is cancelled. Being
// offline is a debug-level non-event.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.Online(ctx) {
				a.logger.Debug("offline, skipping sync")
				continue
			}
			if err := a.SyncOnce(ctx); err != nil {
				a.logger.Warn("sync failed, keeping local state", "error", err)
			}
		}
	}
}
