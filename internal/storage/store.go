// Package storage is the local key/value cache that backs profiles when the
// backend is unreachable. It is a single SQLite table accessed through GORM.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Well-known keys
const (
	KeyMapConfig      = "geopol_map_config"
	KeyCurrentProfile = "geopol_current_profile"
)

// MemoryPath opens a private in-memory store
const MemoryPath = ":memory:"

// ErrNotFound is returned by Get for missing keys
var ErrNotFound = errors.New("key not found")

// Entry is one row of the kv_entries table
type Entry struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName pins the table name
func (Entry) TableName() string {
	return "kv_entries"
}

// Store is a persistent key/value store
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the store at path. MemoryPath opens a
// private in-memory database.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	// an in-memory database lives on a single connection
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate cache: %w", err)
	}

	log.Debug().Str("path", path).Msg("Opened local cache")
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the value stored under key
func (s *Store) Get(key string) (string, error) {
	var e Entry
	err := s.db.Where("key = ?", key).Limit(1).Find(&e).Error
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	if e.Key == "" {
		return "", ErrNotFound
	}
	return e.Value, nil
}

// Set stores value under key, replacing any previous value
func (s *Store) Set(key, value string) error {
	e := Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if err := s.db.Where("key = ?", key).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys
func (s *Store) Keys() ([]string, error) {
	var keys []string
	if err := s.db.Model(&Entry{}).Order("key").Pluck("key", &keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// LoadProfiles returns the cached profile documents keyed by name. A missing
// or corrupt entry yields an empty map; corruption is logged.
func (s *Store) LoadProfiles() (map[string]json.RawMessage, error) {
	profiles := make(map[string]json.RawMessage)
	raw, err := s.Get(KeyMapConfig)
	if errors.Is(err, ErrNotFound) {
		return profiles, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &profiles); err != nil {
		s.log.Warn().Err(err).Msg("Discarding corrupt profile cache")
		return make(map[string]json.RawMessage), nil
	}
	return profiles, nil
}

// SaveProfiles replaces the cached profile documents
func (s *Store) SaveProfiles(profiles map[string]json.RawMessage) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	return s.Set(KeyMapConfig, string(data))
}

// CurrentProfile returns the remembered profile name, or "" if none
func (s *Store) CurrentProfile() (string, error) {
	name, err := s.Get(KeyCurrentProfile)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return name, err
}

// SetCurrentProfile remembers the active profile name
func (s *Store) SetCurrentProfile(name string) error {
	return s.Set(KeyCurrentProfile, name)
}
