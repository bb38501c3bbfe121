package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ChatSnapshot is one persisted conversation row.
type ChatSnapshot struct {
	SessionKey string `gorm:"primaryKey;size:191"`
	Payload    []byte `gorm:"not null"`
	UpdatedAt  time.Time
}

// TableName pins the table name.
func (ChatSnapshot) TableName() string {
	return "chat_snapshots"
}

// SQLBlobs stores snapshots in a SQL table via gorm.
type SQLBlobs struct {
	db *gorm.DB
}

// NewSQLBlobs migrates the snapshot table and returns a blob store over db.
func NewSQLBlobs(db *gorm.DB) (*SQLBlobs, error) {
	if db == nil {
		return nil, errors.New("session: db is required")
	}
	if err := db.AutoMigrate(&ChatSnapshot{}); err != nil {
		return nil, fmt.Errorf("session: migrate chat_snapshots: %w", err)
	}
	return &SQLBlobs{db: db}, nil
}

// OpenSQLite opens a sqlite database at path (":memory:" for tests).
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("session: sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func (s *SQLBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	var row ChatSnapshot
	err := s.db.WithContext(ctx).Where("session_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.Payload, nil
}

func (s *SQLBlobs) Put(ctx context.Context, key string, data []byte) error {
	row := ChatSnapshot{SessionKey: key, Payload: data, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLBlobs) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("session_key = ?", key).Delete(&ChatSnapshot{}).Error
}
