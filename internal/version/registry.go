package version

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EngineVersion represents a published engine release in the registry.
type EngineVersion struct {
	Version         string    `gorm:"primaryKey;type:varchar(50)"`
	Status          string    `gorm:"type:varchar(20);not null"`
	ReleaseDate     time.Time `gorm:"not null"`
	IsDefault       bool      `gorm:"default:false"`
	ReleaseNotes    *string   `gorm:"type:text"`
	BreakingChanges bool      `gorm:"default:false"`
	CreatedAt       time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName sets the table name for GORM.
func (EngineVersion) TableName() string {
	return "engine_versions"
}

// VersionStatus constants
const (
	StatusStable     = "stable"
	StatusBeta       = "beta"
	StatusDeprecated = "deprecated"
)

// Registry manages published engine versions.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// GetDefault returns the version currently marked as default, or nil when the
// registry has none yet.
func (r *Registry) GetDefault(ctx context.Context) (*EngineVersion, error) {
	var v EngineVersion
	err := r.db.WithContext(ctx).
		Where("is_default = ?", true).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get default version: %w", err)
	}
	return &v, nil
}

// List returns all non-deprecated versions, newest first.
func (r *Registry) List(ctx context.Context) ([]EngineVersion, error) {
	var versions []EngineVersion
	err := r.db.WithContext(ctx).
		Where("status != ?", StatusDeprecated).
		Order("release_date DESC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// Create adds a new version to the registry.
func (r *Registry) Create(ctx context.Context, v *EngineVersion) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("create version: %w", err)
	}
	return nil
}

// SetDefault marks a version as the default, unsetting the previous one.
func (r *Registry) SetDefault(ctx context.Context, version string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&EngineVersion{}).
			Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return fmt.Errorf("unset current default: %w", err)
		}

		result := tx.Model(&EngineVersion{}).
			Where("version = ?", version).
			Update("is_default", true)
		if result.Error != nil {
			return fmt.Errorf("set new default: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("version not found: %s", version)
		}
		return nil
	})
}

// UpdateStatus updates the status of a version.
func (r *Registry) UpdateStatus(ctx context.Context, version, status string) error {
	err := r.db.WithContext(ctx).
		Model(&EngineVersion{}).
		Where("version = ?", version).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	return nil
}
