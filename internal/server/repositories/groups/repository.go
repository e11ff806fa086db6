package groups

import "context"

// Membership is a user's relation to a group.
type Membership struct {
	IsOwner  bool
	IsMember bool
}

// Repository answers group-membership questions. Owners count as members.
type Repository interface {
	Membership(ctx context.Context, groupID, userID string) (Membership, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	IsOwner(ctx context.Context, groupID, userID string) (bool, error)
}
