package subscription

import "context"

type Store interface {
	// InsertGrant stores g unless a grant for g.ChargeID exists.
	InsertGrant(ctx context.Context, g *Grant) (created bool, err error)
	// LatestGrant returns the requester's grant with the latest EndsAt.
	LatestGrant(ctx context.Context, requesterID int64) (*Grant, error)
	// ListGrants returns the requester's grants, newest first.
	ListGrants(ctx context.Context, requesterID int64, limit int) ([]*Grant, error)
}
