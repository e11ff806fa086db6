// Package files stores ingested file records in PostgreSQL.
package files

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"github.com/dmitrijs2005/groupfiles/internal/dbx"
	"github.com/dmitrijs2005/groupfiles/internal/server/models"
)

const selectColumns = `f.id, f.group_id, f.uploader_id, f.name, f.content_type, f.category, f.size,
	f.caption, f.object_id, f.url, f.preview_url, f.thumbnail_url, f.metadata, f.created_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts f and fills in its server-assigned CreatedAt.
func (r *PostgresRepository) Create(ctx context.Context, f *models.FileRecord) error {
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `
		INSERT INTO files (id, group_id, uploader_id, name, content_type, category, size,
			caption, object_id, url, preview_url, thumbnail_url, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		f.ID, f.GroupID, f.UploaderID, f.Name, f.ContentType, f.Category, f.Size,
		f.Caption, f.ObjectID, f.URL, nullable(f.PreviewURL), nullable(f.ThumbnailURL), meta,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

// Find returns the record id of groupID when userID owns or belongs to the
// group, and common.ErrorNotFound otherwise.
func (r *PostgresRepository) Find(ctx context.Context, id, groupID, userID string) (*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + `
		FROM files f
		JOIN groups g ON g.id = f.group_id
		WHERE f.id = $1 AND f.group_id = $2
		  AND (g.owner_id = $3 OR EXISTS (
			SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = $3))
	`
	f, err := scanRecord(r.db.QueryRowContext(ctx, query, id, groupID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

// ListByGroup returns the newest records of a group first.
func (r *PostgresRepository) ListByGroup(ctx context.Context, groupID string, limit int) ([]*models.FileRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + selectColumns + `
		FROM files f
		WHERE f.group_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		f, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes exactly one record.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return dbx.ExecOne(ctx, r.db, `DELETE FROM files WHERE id = $1`, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.FileRecord, error) {
	var (
		f              models.FileRecord
		preview, thumb sql.NullString
		meta           []byte
	)
	err := s.Scan(&f.ID, &f.GroupID, &f.UploaderID, &f.Name, &f.ContentType, &f.Category, &f.Size,
		&f.Caption, &f.ObjectID, &f.URL, &preview, &thumb, &meta, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	f.PreviewURL = preview.String
	f.ThumbnailURL = thumb.String
	f.Metadata = models.NewMetadata()
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, f.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", f.ID, err)
		}
	}
	return &f, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
