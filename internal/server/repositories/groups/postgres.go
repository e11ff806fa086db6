// Package groups reads group ownership and membership from PostgreSQL.
package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"github.com/dmitrijs2005/groupfiles/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Membership returns common.ErrGroupNotFound for unknown groups.
func (r *PostgresRepository) Membership(ctx context.Context, groupID, userID string) (Membership, error) {
	query := `
		SELECT g.owner_id = $2,
			EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = g.id AND m.user_id = $2)
		FROM groups g
		WHERE g.id = $1
	`
	var m Membership
	err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&m.IsOwner, &m.IsMember)
	if errors.Is(err, sql.ErrNoRows) {
		return Membership{}, common.ErrGroupNotFound
	}
	if err != nil {
		return Membership{}, fmt.Errorf("failed to select membership: %w", err)
	}
	if m.IsOwner {
		m.IsMember = true
	}
	return m, nil
}

func (r *PostgresRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	m, err := r.Membership(ctx, groupID, userID)
	return m.IsMember, err
}

func (r *PostgresRepository) IsOwner(ctx context.Context, groupID, userID string) (bool, error) {
	m, err := r.Membership(ctx, groupID, userID)
	return m.IsOwner, err
}
