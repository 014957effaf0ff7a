package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reverse411/internal/lookup"
	"github.com/JakeFAU/reverse411/internal/progress"
)

// BatchSavedMessage is the payload published for every workbook flush.
type BatchSavedMessage struct {
	RunID   string    `json:"run_id"`
	Rows    []int     `json:"rows"`
	Final   bool      `json:"final"`
	SavedAt time.Time `json:"saved_at"`
}

// PublishSink publishes one message per BATCH_SAVED event.
type PublishSink struct {
	publisher lookup.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink constructs a PublishSink targeting topic.
func NewPublishSink(publisher lookup.Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes saved batches; other stages are ignored.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageBatchSaved {
			continue
		}
		msg := BatchSavedMessage{
			RunID:   evt.RunUUID().String(),
			Rows:    append([]int(nil), evt.Rows...),
			Final:   evt.Final,
			SavedAt: evt.TS.UTC(),
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			return fmt.Errorf("publish batch saved: %w", err)
		}
		s.logger.Debug("batch saved published", zap.String("message_id", id), zap.Int("rows", len(msg.Rows)))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
