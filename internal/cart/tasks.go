package cart

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypePurgeGuestCarts is the asynq task type that deletes expired guest carts.
const TypePurgeGuestCarts = "cart:purge_guests"

// NewPurgeTask builds the periodic purge task. Its fixed task id means a tick
// is dropped while a previous purge is still queued.
func NewPurgeTask() *asynq.Task {
	return asynq.NewTask(TypePurgeGuestCarts, nil,
		asynq.TaskID(TypePurgeGuestCarts),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	)
}

// PurgeHandler runs guest cart purges from the task queue.
type PurgeHandler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h PurgeHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	n, err := h.Svc.PurgeExpiredGuestCarts(ctx)
	if err != nil {
		return err
	}
	h.Logger.Info().Int64("deleted", n).Msg("purged expired guest carts")
	return nil
}
