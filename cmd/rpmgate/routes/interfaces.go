package routes

import (
	"context"

	"github.com/lgulliver/rpmgate/internal/refresh"
)

// Refresher defines the contract for metadata refresh coordination
type Refresher interface {
	Refresh(ctx context.Context, repo string) (*refresh.Outcome, error)
}
