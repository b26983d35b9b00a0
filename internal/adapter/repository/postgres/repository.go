package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActionModel is the database DTO with Gorm tags.
type ActionModel struct {
	ID       int64  `gorm:"primaryKey"`
	Kind     string `gorm:"type:varchar(100);not null"`
	Payload  []byte `gorm:"type:jsonb"`
	Endpoint string `gorm:"type:text;not null"`
	Method   string `gorm:"type:varchar(10);not null"`
	SyncTag  string `gorm:"type:varchar(255);index"`

	Status        string `gorm:"type:varchar(50);not null;index"`
	Attempts      int    `gorm:"not null;default:0"`
	LastError     string `gorm:"type:text"`
	NextAttemptAt *time.Time

	EnqueuedAt time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time
}

func (ActionModel) TableName() string {
	return "queued_actions"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Load(ctx context.Context) ([]*action.Action, error) {
	var models []ActionModel
	if err := r.db.WithContext(ctx).Order("enqueued_at asc, id asc").Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

func (r *Repository) Append(ctx context.Context, a *action.Action) error {
	model := toModel(a)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *Repository) Remove(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&ActionModel{}, "id = ?", id).Error
}

func (r *Repository) Update(ctx context.Context, id int64, mutate func(*action.Action)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ActionModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		entity := toDomain(model)
		mutate(entity)

		updated := toModel(entity)
		return tx.Save(&updated).Error
	})
}

func (r *Repository) ListByStatus(ctx context.Context, statuses []action.Status, limit int) ([]*action.Action, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}

	query := r.db.WithContext(ctx).
		Where("status IN ?", values).
		Order("enqueued_at asc, id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []ActionModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

// Mappers

func toDomain(m ActionModel) *action.Action {
	return &action.Action{
		ID:            m.ID,
		Kind:          m.Kind,
		Payload:       json.RawMessage(m.Payload),
		Endpoint:      m.Endpoint,
		Method:        m.Method,
		SyncTag:       m.SyncTag,
		Status:        action.Status(m.Status),
		Attempts:      m.Attempts,
		LastError:     m.LastError,
		NextAttemptAt: m.NextAttemptAt,
		EnqueuedAt:    m.EnqueuedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toModel(a *action.Action) ActionModel {
	return ActionModel{
		ID:            a.ID,
		Kind:          a.Kind,
		Payload:       []byte(a.Payload),
		Endpoint:      a.Endpoint,
		Method:        a.Method,
		SyncTag:       a.SyncTag,
		Status:        string(a.Status),
		Attempts:      a.Attempts,
		LastError:     a.LastError,
		NextAttemptAt: a.NextAttemptAt,
		EnqueuedAt:    a.EnqueuedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toDomainList(models []ActionModel) []*action.Action {
	items := make([]*action.Action, 0, len(models))
	for _, model := range models {
		items = append(items, toDomain(model))
	}
	return items
}
