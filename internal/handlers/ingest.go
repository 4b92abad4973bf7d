package handlers

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/suyashkumar/dicom"

	"github.com/orthanc-go/orthanc/internal/index"
	"github.com/orthanc-go/orthanc/internal/metrics"
	"github.com/orthanc-go/orthanc/internal/models"
	"github.com/orthanc-go/orthanc/internal/modification"
	"github.com/orthanc-go/orthanc/internal/storage"
)

// ingestDataset serializes ds, writes it to the blob store under a fresh
// uuid, and registers it with the index as the instance's DICOM attachment
// (no DICOM-as-JSON attachment is written) -- the single path that the
// ancestor-level modify/anonymize re-ingest and create-dicom funnel through.
func ingestDataset(ctx context.Context, idx *index.ServerIndex, store storage.Store, ds *dicom.Dataset, remoteAET string) (index.StoreStatus, error) {
	var buf bytes.Buffer
	if err := dicom.Write(&buf, *ds, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification(), dicom.DefaultMissingTransferSyntax()); err != nil {
		return 0, fmt.Errorf("failed to serialize dataset: %w", err)
	}
	raw := buf.Bytes()

	blobUUID := uuid.New().String()
	size, _, err := store.Put(ctx, blobUUID, bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}
	digest := md5.Sum(raw)

	attachment := index.AttachmentInput{
		Type:             models.FileDicom,
		UUID:             blobUUID,
		CompressionType:  "none",
		CompressedSize:   size,
		UncompressedSize: size,
		CompressedMD5:    hex.EncodeToString(digest[:]),
		UncompressedMD5:  hex.EncodeToString(digest[:]),
	}

	tags := modification.ExtractTags(ds)
	status, err := idx.Store(ctx, tags, []index.AttachmentInput{attachment}, remoteAET)
	if err != nil {
		if delErr := store.Delete(ctx, blobUUID); delErr != nil {
			return 0, fmt.Errorf("failed to store instance: %w (and failed to clean up blob: %v)", err, delErr)
		}
		return 0, fmt.Errorf("failed to store instance: %w", err)
	}
	if status == index.StoreStatusAlreadyStored {
		if err := store.Delete(ctx, blobUUID); err != nil {
			return status, fmt.Errorf("instance already stored, but failed to clean up duplicate blob: %w", err)
		}
	}
	metrics.InstancesStored.WithLabelValues(status.String()).Inc()
	return status, nil
}
