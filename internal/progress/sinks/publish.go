package sinks

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bulkgen/internal/progress"
	"github.com/JakeFAU/bulkgen/internal/publisher"
)

// Notification is the message body published for each event.
type Notification struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Worker    int       `json:"worker,omitempty"`
	Region    string    `json:"region,omitempty"`
	Ghost     bool      `json:"ghost,omitempty"`
	Target    int64     `json:"target,omitempty"`
	Threads   int       `json:"threads,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	Outcomes  []string  `json:"outcomes,omitempty"`
	DurMillis int64     `json:"duration_ms,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// Attributes implements publisher.Attributed.
func (n Notification) Attributes() map[string]string {
	attrs := map[string]string{"run_id": n.RunID, "stage": n.Stage}
	if n.Worker > 0 {
		attrs["worker"] = strconv.Itoa(n.Worker)
	}
	return attrs
}

// PublishSinkConfig selects topics. Empty topics disable that stream.
type PublishSinkConfig struct {
	RunTopic     string
	AccountTopic string
}

// PublishSink forwards lifecycle events to RunTopic and account outcomes to
// AccountTopic. WORKER_EXIT events are not published.
type PublishSink struct {
	pub    publisher.Publisher
	cfg    PublishSinkConfig
	logger *zap.Logger
}

// NewPublishSink constructs a PublishSink.
func NewPublishSink(pub publisher.Publisher, cfg PublishSinkConfig, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{pub: pub, cfg: cfg, logger: logger}
}

// Consume publishes each event. The first failure aborts the batch.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		topic := s.topicFor(evt.Stage)
		if topic == "" {
			continue
		}
		id, err := s.pub.Publish(ctx, topic, notificationOf(evt))
		if err != nil {
			return fmt.Errorf("publish %s event: %w", evt.Stage, err)
		}
		s.logger.Debug("published progress notification",
			zap.String("topic", topic),
			zap.String("message_id", id),
			zap.String("stage", string(evt.Stage)),
		)
	}
	return nil
}

func (s *PublishSink) topicFor(stage progress.Stage) string {
	switch stage {
	case progress.StageAccount:
		return s.cfg.AccountTopic
	case progress.StageJobStart, progress.StageJobDone, progress.StageJobStopped, progress.StageJobError:
		return s.cfg.RunTopic
	default:
		return ""
	}
}

// Close implements progress.Sink.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

func notificationOf(evt progress.Event) Notification {
	n := Notification{
		RunID:     evt.RunUUID().String(),
		Stage:     string(evt.Stage),
		Timestamp: evt.TS,
		Worker:    evt.Worker,
		Region:    evt.Region,
		Ghost:     evt.Ghost,
		Target:    evt.Target,
		Threads:   evt.Threads,
		AccountID: evt.AccountID,
		DurMillis: evt.Dur.Milliseconds(),
		Note:      evt.Note,
	}
	for _, o := range evt.Outcomes {
		n.Outcomes = append(n.Outcomes, string(o))
	}
	return n
}
