package history

import (
	"context"
	"errors"

	"github.com/eleven-am/live-vision/internal/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&SessionRecord{})
}

// Save upserts by id so a repeated close never fails.
func (s *Store) Save(ctx context.Context, rec *SessionRecord) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &rec, err
}

type ListFilter struct {
	ModelID string
	Source  string
	Limit   int
	Offset  int
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]*SessionRecord, int64, error) {
	q := s.db.WithContext(ctx).Model(&SessionRecord{})
	if f.ModelID != "" {
		q = q.Where("model_id = ?", f.ModelID)
	}
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []*SessionRecord
	err := q.Order("opened_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&records).Error
	return records, total, err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&SessionRecord{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
