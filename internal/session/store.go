package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyPrefix namespaces every key written by the dashboard client.
const KeyPrefix = "affiliate_dashboard_"

var (
	errMissingStoreDatabase = errors.New("session: store database is required")
	errEmptyKey             = errors.New("session: storage key is required")
)

type storageEntry struct {
	Key       string    `gorm:"column:storage_key;primaryKey;size:190;not null"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (storageEntry) TableName() string {
	return "client_storage"
}

// Store is a prefixed key/value store holding JSON documents for the local client.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore prepares the storage table on db.
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errMissingStoreDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&storageEntry{}); err != nil {
		return nil, fmt.Errorf("session: migrate storage: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func prefixed(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errEmptyKey
	}
	return KeyPrefix + trimmed, nil
}

// Get decodes the value stored under key into dest and reports whether the key existed.
// A value that no longer decodes is treated as absent.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	storageKey, err := prefixed(key)
	if err != nil {
		return false, err
	}
	var entry storageEntry
	err = s.db.WithContext(ctx).Where("storage_key = ?", storageKey).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(entry.Value), dest); err != nil {
		s.logger.Warn("discarding unreadable storage entry", zap.String("key", storageKey), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// Set encodes value as JSON and writes it under key.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	storageKey, err := prefixed(key)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", key, err)
	}
	entry := storageEntry{Key: storageKey, Value: string(payload)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// Remove deletes key. Missing keys are not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	storageKey, err := prefixed(key)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("storage_key = ?", storageKey).Delete(&storageEntry{}).Error
}

// ClearAll removes every key carrying the dashboard prefix.
func (s *Store) ClearAll(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("substr(storage_key, 1, ?) = ?", len(KeyPrefix), KeyPrefix).
		Delete(&storageEntry{})
	if result.Error != nil {
		return result.Error
	}
	s.logger.Debug("client storage cleared", zap.Int64("removed", result.RowsAffected))
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
