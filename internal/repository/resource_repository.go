// Package repository is the gorm-backed data access layer under
// internal/index's ServerIndex. Every repository here is bound to a
// *gorm.DB that may be the package-level database.DB for plain reads, or a
// transaction handle for the multi-table mutations Store and DeleteResource
// perform -- the repositories themselves hold no transaction boundaries of
// their own, since C4 owns exactly where a transaction starts and ends.
package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
)

// ResourceRepository is the CRUD surface over the resources table.
type ResourceRepository struct {
	db *gorm.DB
}

// NewResourceRepository binds a repository to db, which may be
// database.DB or an open transaction.
func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create inserts a new resource row, assigning its ID.
func (r *ResourceRepository) Create(ctx context.Context, res *models.Resource) error {
	if err := r.db.WithContext(ctx).Create(res).Error; err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	return nil
}

// FindByPublicID looks up a resource by its public id and kind. Kind is
// part of the lookup because public ids are only unique per kind.
func (r *ResourceRepository) FindByPublicID(ctx context.Context, publicID string, kind models.ResourceKind) (*models.Resource, error) {
	var res models.Resource
	err := r.db.WithContext(ctx).
		Where("public_id = ? AND kind = ?", publicID, kind).
		First(&res).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// FindAnyByPublicID looks up a resource by public id regardless of kind,
// used when the caller doesn't yet know what kind a given id refers to.
func (r *ResourceRepository) FindAnyByPublicID(ctx context.Context, publicID string) (*models.Resource, error) {
	var res models.Resource
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// FindByID looks up a resource by internal id.
func (r *ResourceRepository) FindByID(ctx context.Context, id int64) (*models.Resource, error) {
	var res models.Resource
	if err := r.db.WithContext(ctx).First(&res, id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// Children returns the direct children of parentID.
func (r *ResourceRepository) Children(ctx context.Context, parentID int64) ([]models.Resource, error) {
	var children []models.Resource
	if err := r.db.WithContext(ctx).Where("parent_id = ?", parentID).Find(&children).Error; err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return children, nil
}

// AllUUIDs returns the public ids of every resource of the given kind.
func (r *ResourceRepository) AllUUIDs(ctx context.Context, kind models.ResourceKind) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("kind = ?", kind).
		Pluck("public_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return ids, nil
}

// Delete removes a single resource row (not cascading -- the caller drives
// the cascade explicitly, one row at a time, so it can observe which
// ancestors survive).
func (r *ResourceRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&models.Resource{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// SetParent attaches childID under parentID, grounding AttachChild: the
// child resource was created without a parent link (or under a
// different one) and is now linked into the hierarchy.
func (r *ResourceRepository) SetParent(ctx context.Context, childID, parentID int64) error {
	err := r.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("id = ?", childID).
		Update("parent_id", parentID).Error
	if err != nil {
		return fmt.Errorf("failed to attach child %d to parent %d: %w", childID, parentID, err)
	}
	return nil
}

// CountChildren reports how many children parentID currently has. Used by
// the cascading-delete walk to decide whether a parent has become empty.
func (r *ResourceRepository) CountChildren(ctx context.Context, parentID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("parent_id = ?", parentID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return count, nil
}

// CountByKind reports the total number of resources of a given kind,
// used by ComputeStatistics.
func (r *ResourceRepository) CountByKind(ctx context.Context, kind models.ResourceKind) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("kind = ?", kind).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", err)
	}
	return count, nil
}
