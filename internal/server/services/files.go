package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"github.com/dmitrijs2005/groupfiles/internal/dbx"
	"github.com/dmitrijs2005/groupfiles/internal/server/models"
	"github.com/dmitrijs2005/groupfiles/internal/server/repositories/groups"
	"github.com/dmitrijs2005/groupfiles/internal/server/storage"
)

const defaultListLimit = 100

// Delete removes a file record and then its objects. Only the uploader or
// the group owner may delete. Object deletion is best effort: leftovers are
// logged for reconciliation and do not fail the call.
func (s *IngestService) Delete(ctx context.Context, fileID, groupID, userID string) error {
	m, err := s.membership(ctx, groupID, userID)
	if err != nil {
		return err
	}

	var record *models.FileRecord
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Files(tx)

		f, err := repo.Find(ctx, fileID, groupID, userID)
		if err != nil {
			return fmt.Errorf("error searching file: %w", err)
		}
		if f.UploaderID != userID && !m.IsOwner {
			return common.ErrUnauthorized
		}
		if err := repo.Delete(ctx, f.ID); err != nil {
			return fmt.Errorf("error deleting file: %w", err)
		}
		record = f
		return nil
	})
	if err != nil {
		return err
	}

	ids := append([]string{record.ObjectID}, storage.DerivedIDs(record.ObjectID)...)
	if err := s.deps.Uploader.Cleanup(ctx, ids...); err != nil {
		s.logger.Error(ctx, "objects of deleted file not removed",
			"reconcile", true, "file_id", record.ID, "object_ids", ids, "error", err)
	}
	s.logger.Info(ctx, "file deleted", "file_id", record.ID, "group_id", groupID, "user_id", userID)
	return nil
}

// DownloadURL returns a time-limited link to the original upload.
func (s *IngestService) DownloadURL(ctx context.Context, fileID, groupID, userID string) (string, error) {
	if _, err := s.membership(ctx, groupID, userID); err != nil {
		return "", err
	}

	f, err := s.repomanager.Files(s.db).Find(ctx, fileID, groupID, userID)
	if err != nil {
		return "", fmt.Errorf("error searching file: %w", err)
	}

	url, err := s.deps.Store.PresignGet(ctx, f.ObjectID, s.downloadTTL)
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}
	return url, nil
}

// List returns the newest files of a group, at most limit of them.
func (s *IngestService) List(ctx context.Context, groupID, userID string, limit int) ([]*models.FileRecord, error) {
	if _, err := s.membership(ctx, groupID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.repomanager.Files(s.db).ListByGroup(ctx, groupID, limit)
}

func (s *IngestService) membership(ctx context.Context, groupID, userID string) (groups.Membership, error) {
	m, err := s.repomanager.Groups(s.db).Membership(ctx, groupID, userID)
	if err != nil {
		return m, err
	}
	if !m.IsMember {
		return m, common.ErrUnauthorized
	}
	return m, nil
}
