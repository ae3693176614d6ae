package payments

import "context"

type Repository interface {
	CountApproved(ctx context.Context, appID int64, email string) (int, error)
}
