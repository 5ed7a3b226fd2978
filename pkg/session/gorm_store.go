package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the row GormStore writes.
type Record struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Data      []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
}

func (Record) TableName() string { return "sessions" }

// GormStore keeps sessions in a SQL table through gorm.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore migrates the sessions table and returns a store on db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("session/gorm: migrate: %w", err)
	}
	return &GormStore{db: db, now: time.Now}, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (map[string]any, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, s.now()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session/gorm: get: %w", err)
	}
	return decode(rec.Data)
}

func (s *GormStore) Set(ctx context.Context, id string, data map[string]any, ttl time.Duration) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}
	rec := Record{ID: id, Data: raw, ExpiresAt: s.now().Add(ttl)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "expires_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("session/gorm: set: %w", err)
	}
	return nil
}

func (s *GormStore) Destroy(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Record{ID: id}).Error; err != nil {
		return fmt.Errorf("session/gorm: delete: %w", err)
	}
	return nil
}

// Prune deletes expired rows.
func (s *GormStore) Prune(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&Record{})
	if res.Error != nil {
		return 0, fmt.Errorf("session/gorm: prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}
