package index

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/repository"
)

// changeTypeForDelete maps a resource kind to the change log entry its
// deletion should produce.
func changeTypeForDelete(kind models.ResourceKind) models.ChangeType {
	switch kind {
	case models.KindPatient:
		return models.ChangeDeletedPatient
	case models.KindStudy:
		return models.ChangeDeletedStudy
	case models.KindSeries:
		return models.ChangeDeletedSeries
	default:
		return models.ChangeDeletedInstance
	}
}

// DeleteResource deletes the resource identified by publicID, which must
// be of kind expectedKind, together with every descendant, then walks
// upward collapsing any ancestor that has lost its last child. Returns
// ok=false if no such resource exists or its kind doesn't match.
// Grounded on ServerIndex::DeleteResource and the
// ServerIndexListener ancestor-collapse/file-deletion callbacks.
func (idx *ServerIndex) DeleteResource(ctx context.Context, publicID string, expectedKind models.ResourceKind) (ok bool, remaining *RemainingAncestor, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var listener remainingAncestor
	listener.reset()
	var deletedBlobUUIDs []string
	now := time.Now().UTC()

	txErr := idx.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resources := repository.NewResourceRepository(tx)

		target, lookupErr := resources.FindByPublicID(ctx, publicID, expectedKind)
		if lookupErr == gorm.ErrRecordNotFound {
			ok = false
			return nil
		}
		if lookupErr != nil {
			return lookupErr
		}
		ok = true

		blobs, deleteErr := idx.deleteSubtree(ctx, tx, target, now)
		if deleteErr != nil {
			return deleteErr
		}
		deletedBlobUUIDs = append(deletedBlobUUIDs, blobs...)

		parentID := target.ParentID
		for parentID != nil {
			parent, parentErr := resources.FindByID(ctx, *parentID)
			if parentErr != nil {
				return parentErr
			}
			count, countErr := resources.CountChildren(ctx, parent.ID)
			if countErr != nil {
				return countErr
			}
			if count > 0 {
				listener.signal(parent.Kind, parent.PublicID)
				break
			}

			blobs, deleteErr := idx.deleteSubtree(ctx, tx, parent, now)
			if deleteErr != nil {
				return deleteErr
			}
			deletedBlobUUIDs = append(deletedBlobUUIDs, blobs...)
			parentID = parent.ParentID
		}

		return nil
	})
	if txErr != nil {
		return false, nil, txErr
	}
	if !ok {
		return false, nil, nil
	}

	// The blob store is only touched once the metadata transaction has
	// committed, so a rollback never orphans a file that outlives its row.
	for _, uuid := range deletedBlobUUIDs {
		if delErr := idx.storage.Delete(ctx, uuid); delErr != nil {
			idx.log.Error().Err(delErr).Str("uuid", uuid).Msg("failed to delete attachment blob")
		}
	}

	return true, listener.result(), nil
}

// deleteSubtree recursively deletes resource and every descendant within
// tx, returning every attachment blob UUID that was freed. Children are
// removed before their parent to satisfy the resources table's foreign
// key, and a Change row is appended for every resource removed.
func (idx *ServerIndex) deleteSubtree(ctx context.Context, tx *gorm.DB, resource *models.Resource, at time.Time) ([]string, error) {
	resources := repository.NewResourceRepository(tx)
	attachmentRepo := repository.NewAttachmentRepository(tx)
	changes := repository.NewChangeRepository(tx)

	children, err := resources.Children(ctx, resource.ID)
	if err != nil {
		return nil, err
	}

	var blobUUIDs []string
	for _, child := range children {
		childBlobs, err := idx.deleteSubtree(ctx, tx, &child, at)
		if err != nil {
			return nil, err
		}
		blobUUIDs = append(blobUUIDs, childBlobs...)
	}

	attachments, err := attachmentRepo.ListByResource(ctx, resource.ID)
	if err != nil {
		return nil, err
	}
	for _, att := range attachments {
		blobUUIDs = append(blobUUIDs, att.UUID)
	}
	if err := attachmentRepo.DeleteByResource(ctx, resource.ID); err != nil {
		return nil, err
	}

	if err := changes.Log(ctx, changeTypeForDelete(resource.Kind), resource.ID, resource.Kind, resource.PublicID, at); err != nil {
		return nil, err
	}

	if err := resources.Delete(ctx, resource.ID); err != nil {
		return nil, err
	}

	return blobUUIDs, nil
}
