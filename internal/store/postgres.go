package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"main/internal/model"
)

// Postgres persists orders through a gorm connection.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres wraps an open gorm connection.
func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the orders table when missing.
func (p *Postgres) Migrate() error {
	return p.db.AutoMigrate(&model.Order{})
}

// Create inserts a new order row.
func (p *Postgres) Create(ctx context.Context, order *model.Order) error {
	return p.db.WithContext(ctx).Create(order).Error
}

// GetByID loads an order row.
func (p *Postgres) GetByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := p.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateFields applies a partial update in a single statement.
func (p *Postgres) UpdateFields(ctx context.Context, id string, fields Fields) error {
	values := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if fields.Status != nil {
		values["status"] = *fields.Status
	}
	if fields.ChosenVenue != nil {
		values["chosen_venue"] = *fields.ChosenVenue
	}
	if fields.ExecutedPrice != nil {
		values["executed_price"] = *fields.ExecutedPrice
	}
	if fields.SettlementRef != nil {
		values["settlement_ref"] = *fields.SettlementRef
	}
	if fields.FailureReason != nil {
		values["failure_reason"] = *fields.FailureReason
	}
	res := p.db.WithContext(ctx).Model(&model.Order{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnfinished returns all non-terminal orders, oldest first.
func (p *Postgres) ListUnfinished(ctx context.Context) ([]*model.Order, error) {
	var orders []*model.Order
	err := p.db.WithContext(ctx).
		Where("status NOT IN ?", []model.Status{model.StatusConfirmed, model.StatusFailed}).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
