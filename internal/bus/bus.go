package bus

import (
	"context"

	"main/internal/model"
)

// Publisher broadcasts persisted lifecycle transitions. Publish is
// fire-and-forget: callers log failures and move on, the order store
// remains the source of truth.
type Publisher interface {
	Publish(ctx context.Context, event model.StatusEvent) error
}
