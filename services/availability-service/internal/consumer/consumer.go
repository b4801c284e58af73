package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotreflow/libs/kafkax"
	"github.com/md-rashed-zaman/slotreflow/libs/metrics"
	"github.com/segmentio/kafka-go"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox claims event ids. Forget releases a claim whose handler never
// succeeded so a redelivery runs it again.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, scheduleID, date string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic with at-least-once delivery: a message is committed
// only after it was handled or found to be a duplicate. A failing message is
// retried in place, since committing a later offset of the partition would
// commit it too.
type Consumer struct {
	reader     messageReader
	logger     *slog.Logger
	inbox      Inbox
	handler    Handler
	metrics    *metrics.Metrics
	backoff    time.Duration
	maxBackoff time.Duration
}

type Config struct {
	Brokers []string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inbox Inbox, m *metrics.Metrics, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:     reader,
		logger:     logger.With("topic", cfg.Topic),
		inbox:      inbox,
		handler:    handler,
		metrics:    m,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		outcome := c.process(ctx, msg)
		c.count(msg.Topic, outcome)
		if outcome == outcomeAborted {
			// Shutting down mid-message; the offset stays uncommitted.
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "offset", msg.Offset)
		}
	}
}

const (
	outcomeHandled   = "handled"
	outcomeDuplicate = "duplicate"
	outcomeRetry     = "retry"
	outcomeAborted   = "aborted"
)

func (c *Consumer) count(topic, outcome string) {
	if c.metrics != nil {
		c.metrics.EventsConsumed.WithLabelValues(topic, outcome).Inc()
	}
}

// process claims the event id, then runs the handler until it succeeds. It
// only gives up when ctx is done.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) string {
	ctxSpan, span := kafkax.StartConsumeSpan(ctx, msg)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	log := c.logger.With("event_id", meta.EventID, "offset", msg.Offset)

	var fresh bool
	err := c.retry(ctxSpan, log, msg.Topic, "inbox record", func(ctx context.Context) error {
		var err error
		fresh, err = c.inbox.Record(ctx, meta.EventID, meta.EventType)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return outcomeAborted
	}
	if !fresh {
		log.Info("duplicate event ignored", "event_type", meta.EventType)
		return outcomeDuplicate
	}

	err = c.retry(ctxSpan, log, msg.Topic, "handler", func(ctx context.Context) error {
		return c.handler(ctx, msg)
	})
	if err != nil {
		span.RecordError(err)
		forgetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctxSpan), 5*time.Second)
		defer cancel()
		if err := c.inbox.Forget(forgetCtx, meta.EventID); err != nil {
			log.Error("inbox release failed; redelivery will be skipped as duplicate", "err", err)
		}
		return outcomeAborted
	}
	return outcomeHandled
}

// retry runs fn until it succeeds, doubling the wait between attempts up to
// maxBackoff. It returns ctx.Err() once ctx is done.
func (c *Consumer) retry(ctx context.Context, log *slog.Logger, topic, step string, fn func(context.Context) error) error {
	wait := c.backoff
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error(step+" failed", "err", err, "retry_in", wait)
		c.count(topic, outcomeRetry)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if c.maxBackoff > 0 {
			wait = min(wait*2, c.maxBackoff)
		}
	}
}

type bookingEvent struct {
	ScheduleID string `json:"schedule_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
}

// dayOf returns the schedule day an event touches. An explicit date wins over
// the date part of start_time.
func (e bookingEvent) dayOf() (string, error) {
	if d := strings.TrimSpace(e.Date); d != "" {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return "", fmt.Errorf("invalid date %q", d)
		}
		return d, nil
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(e.StartTime))
	if err != nil {
		return "", fmt.Errorf("invalid start_time %q", e.StartTime)
	}
	return start.Format(time.DateOnly), nil
}

// InvalidateOnBookingChange drops the cached day named by a booking event.
// Payloads that cannot be used are logged and skipped so they are not
// redelivered forever.
func InvalidateOnBookingChange(inv Invalidator, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt bookingEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		scheduleID := strings.TrimSpace(evt.ScheduleID)
		if scheduleID == "" {
			logger.Error("missing schedule_id in event", "topic", msg.Topic)
			return nil
		}
		day, err := evt.dayOf()
		if err != nil {
			logger.Error("event has no usable day", "err", err, "topic", msg.Topic)
			return nil
		}
		if err := inv.Invalidate(ctx, scheduleID, day); err != nil {
			return fmt.Errorf("invalidate %s %s: %w", scheduleID, day, err)
		}
		logger.Debug("availability invalidated", "schedule_id", scheduleID, "date", day)
		return nil
	}
}
