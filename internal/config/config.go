package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the server's environment-driven configuration.
type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string

	// Web push (disabled when either VAPID key is empty)
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	PushSubscriber  string

	// Encrypted off-site snapshot backups (disabled unless fully set)
	BackupEndpoint   string
	BackupBucket     string
	BackupRegion     string
	BackupAccessKey  string
	BackupSecretKey  string
	BackupPassphrase string
	BackupInterval   time.Duration
}

// Load reads configuration from LARDER_* environment variables.
func Load() Config {
	return Config{
		Port:      getenv("LARDER_PORT", "3001"),
		DBPath:    getenv("LARDER_DB_PATH", "larder.db"),
		LogLevel:  getenv("LARDER_LOG_LEVEL", "info"),
		LogFormat: getenv("LARDER_LOG_FORMAT", "text"),

		VAPIDPublicKey:  getenv("LARDER_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getenv("LARDER_VAPID_PRIVATE_KEY", ""),
		PushSubscriber:  getenv("LARDER_PUSH_SUBSCRIBER", ""),

		BackupEndpoint:   getenv("LARDER_BACKUP_S3_ENDPOINT", ""),
		BackupBucket:     getenv("LARDER_BACKUP_S3_BUCKET", ""),
		BackupRegion:     getenv("LARDER_BACKUP_S3_REGION", "auto"),
		BackupAccessKey:  getenv("LARDER_BACKUP_S3_ACCESS_KEY", ""),
		BackupSecretKey:  getenv("LARDER_BACKUP_S3_SECRET_KEY", ""),
		BackupPassphrase: getenv("LARDER_BACKUP_PASSPHRASE", ""),
		BackupInterval:   time.Duration(getenvInt("LARDER_BACKUP_INTERVAL_HOURS", 24)) * time.Hour,
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
