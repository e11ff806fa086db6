package files

import (
	"context"

	"github.com/dmitrijs2005/groupfiles/internal/server/models"
)

// Repository persists file records.
type Repository interface {
	Create(ctx context.Context, f *models.FileRecord) error
	Find(ctx context.Context, id, groupID, userID string) (*models.FileRecord, error)
	ListByGroup(ctx context.Context, groupID string, limit int) ([]*models.FileRecord, error)
	Delete(ctx context.Context, id string) error
}
