package pinning

import (
	"context"

	"gorm.io/gorm"
)

// Repository persists pin audit records
type Repository interface {
	CreatePin(ctx context.Context, record *PinRecord) error
	GetPinByCID(ctx context.Context, cid string) (*PinRecord, error)
	ListPins(ctx context.Context, limit int) ([]PinRecord, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates the repository and migrates its tables
func NewRepository(db *gorm.DB) (Repository, error) {
	if err := db.AutoMigrate(&PinRecord{}); err != nil {
		return nil, err
	}
	return &gormRepository{db: db}, nil
}

func (r *gormRepository) CreatePin(ctx context.Context, record *PinRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormRepository) GetPinByCID(ctx context.Context, cid string) (*PinRecord, error) {
	var record PinRecord
	err := r.db.WithContext(ctx).Where("cid = ?", cid).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) ListPins(ctx context.Context, limit int) ([]PinRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []PinRecord
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}
