// Package backup ships encrypted copies of the authoritative snapshot to
// S3-compatible storage on a schedule.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client is the slice of the S3 API the manager uses; an interface for
// testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter supplies the document to back up. Satisfied by
// store.SnapshotStore.
type Exporter interface {
	ExportJSON() ([]byte, time.Time, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration. The manager stays disabled
// until bucket, credentials, and passphrase are all set.
type Config struct {
	S3         S3Config
	Passphrase string
	Interval   time.Duration
	Prefix     string
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status is the externally visible backup state.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// Manager runs scheduled encrypted snapshot uploads.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status

	exporter Exporter
	client   s3Client
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a backup manager. Disabled unless fully configured.
func NewManager(cfg Config, exporter Exporter, logger *slog.Logger) *Manager {
	if cfg.Interval == 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "larder"
	}

	m := &Manager{
		cfg:      cfg,
		exporter: exporter,
		logger:   logger,
		status:   Status{State: StateDisabled},
	}
	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether the manager is configured to run.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.State != StateDisabled
}

// Status returns a copy of the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Start begins the scheduled backup loop. No-op when disabled.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled || m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.BackupNow(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// BackupNow exports, encrypts, and uploads one snapshot.
func (m *Manager) BackupNow(ctx context.Context) error {
	m.mu.Lock()
	if m.status.State == StateDisabled {
		m.mu.Unlock()
		return fmt.Errorf("backup disabled")
	}
	if m.status.InProgress {
		m.mu.Unlock()
		return fmt.Errorf("backup already in progress")
	}
	m.status.InProgress = true
	m.status.State = StateRunning
	m.mu.Unlock()

	err := m.run(ctx)

	m.mu.Lock()
	m.status.InProgress = false
	if err != nil {
		m.status.State = StateError
		m.status.Error = err.Error()
	} else {
		now := time.Now().UTC()
		m.status.State = StateIdle
		m.status.Error = ""
		m.status.LastBackup = &now
	}
	m.mu.Unlock()
	return err
}

func (m *Manager) run(ctx context.Context) error {
	doc, updatedAt, err := m.exporter.ExportJSON()
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}

	sealed, err := Encrypt(doc, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json.enc", m.cfg.Prefix, updatedAt.UTC().Format("20060102-150405"))
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(sealed),
	})
	if err != nil {
		return fmt.Errorf("upload backup: %w", err)
	}

	m.mu.Lock()
	m.status.LastKey = key
	m.mu.Unlock()

	m.logger.Info("backup uploaded", "key", key, "bytes", len(sealed))
	return nil
}
