package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
)

const journalWriteTimeout = 5 * time.Second

// JournalSink records every placed order in the store. Writes happen off the
// caller's goroutine so Publish never blocks on the database.
type JournalSink struct {
	store  *SQLStore
	logger *zap.Logger
}

func NewJournalSink(store *SQLStore, logger *zap.Logger) *JournalSink {
	return &JournalSink{store: store, logger: logger}
}

func (j *JournalSink) Publish(evt domain.Event) {
	if evt.Type != domain.EventOrderPlaced {
		return
	}
	order, ok := evt.Payload.(*domain.Order)
	if !ok || order == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		defer cancel()
		if err := j.store.SaveOrder(ctx, order); err != nil {
			j.logger.Error("Failed to journal order",
				zap.String("bot_id", order.BotID),
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}()
}
