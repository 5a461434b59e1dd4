package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/mantonx/reelplay/internal/config"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Store reads and writes sessions and events
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

// Open connects to the configured database and migrates the tables.
func Open(cfg config.StoreConfig, logger hclog.Logger) (*Store, error) {
	gormCfg := &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	}

	var db *gorm.DB
	var err error
	switch cfg.Type {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.Path), gormCfg)
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Type == "sqlite" {
		// sqlite allows one writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	s := New(db, logger)
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.logger.Info("store opened", "type", cfg.Type)
	return s, nil
}

// New wraps an open connection without migrating.
func New(db *gorm.DB, logger hclog.Logger) *Store {
	return &Store{db: db, logger: logger.Named("store")}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&PlayerSession{}, &SessionEvent{}); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}
	return nil
}

// CreateSession inserts the session. An existing row with the same id is
// kept as it is.
func (s *Store) CreateSession(ctx context.Context, session *PlayerSession) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(session).Error
}

// SaveSession inserts the session or replaces the stored row.
func (s *Store) SaveSession(ctx context.Context, session *PlayerSession) error {
	return s.db.WithContext(ctx).Save(session).Error
}

// CloseSession stamps the closing time of a session.
func (s *Store) CloseSession(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&PlayerSession{}).
		Where("id = ?", id).
		Update("closed_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*PlayerSession, error) {
	var session PlayerSession
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// RecentSessions returns the latest sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]*PlayerSession, error) {
	var sessions []*PlayerSession
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

func (s *Store) CreateEvent(ctx context.Context, event *SessionEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

// SessionEvents returns the events of a session in the order they occurred.
func (s *Store) SessionEvents(ctx context.Context, sessionID string) ([]*SessionEvent, error) {
	var events []*SessionEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("event_time ASC").
		Find(&events).Error
	return events, err
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
