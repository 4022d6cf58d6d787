package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/farmbooks/farmbooks/internal/event/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) eventdomain.Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, ev *eventdomain.Event) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *repository) FindByID(ctx context.Context, tenantID, id snowflake.ID) (*eventdomain.Event, error) {
	var ev eventdomain.Event
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, tenantID snowflake.ID, key string) (*eventdomain.Event, error) {
	var ev eventdomain.Event
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

func (r *repository) List(ctx context.Context, tenantID snowflake.ID, status eventdomain.EventStatus, limit int) ([]eventdomain.Event, error) {
	stmt := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	var events []eventdomain.Event
	if err := stmt.Order("created_at ASC, id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
