package repository

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orthanc-go/orthanc/internal/models"
)

// GlobalPropertyRepository is the CRUD surface over global_properties.
type GlobalPropertyRepository struct {
	db *gorm.DB
}

// NewGlobalPropertyRepository binds a repository to db.
func NewGlobalPropertyRepository(db *gorm.DB) *GlobalPropertyRepository {
	return &GlobalPropertyRepository{db: db}
}

// Get returns the value of key, and whether it exists.
func (r *GlobalPropertyRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var row models.GlobalProperty
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get global property %s: %w", key, err)
	}
	return row.Value, true, nil
}

// GetWithDefault returns the value of key, or fallback if it is unset.
func (r *GlobalPropertyRepository) GetWithDefault(ctx context.Context, key, fallback string) (string, error) {
	value, ok, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return value, nil
}

// Set upserts a key/value pair.
func (r *GlobalPropertyRepository) Set(ctx context.Context, key, value string) error {
	row := models.GlobalProperty{Key: key, Value: value}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to set global property %s: %w", key, err)
	}
	return nil
}

// IncrementSequence atomically increments the integer counter stored at
// key and returns its new value, starting from 1 if it didn't exist yet.
// Backs increment_global_sequence, used by GeneratePatientName.
func (r *GlobalPropertyRepository) IncrementSequence(ctx context.Context, key string) (uint64, error) {
	var next uint64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.GlobalProperty
		err := tx.Where("key = ?", key).First(&row).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			next = 1
		case err != nil:
			return err
		default:
			current, parseErr := strconv.ParseUint(row.Value, 10, 64)
			if parseErr != nil {
				current = 0
			}
			next = current + 1
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&models.GlobalProperty{Key: key, Value: strconv.FormatUint(next, 10)}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment global sequence %s: %w", key, err)
	}
	return next, nil
}
