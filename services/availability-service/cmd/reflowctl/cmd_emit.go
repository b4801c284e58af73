package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotreflow/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
)

var (
	emitBrokers    string
	emitTopic      string
	emitScheduleID string
	emitDate       string
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Publish a booking event so running services drop a cached day",
	RunE:  runEmit,
}

func init() {
	emitCmd.Flags().StringVar(&emitBrokers, "brokers", "localhost:9092", "Comma separated Kafka brokers")
	emitCmd.Flags().StringVar(&emitTopic, "topic", "booking.appointment.booked.v1", "Topic to publish to")
	emitCmd.Flags().StringVar(&emitScheduleID, "schedule", "", "Schedule id")
	emitCmd.Flags().StringVar(&emitDate, "date", "", "Day to invalidate (YYYY-MM-DD)")
	_ = emitCmd.MarkFlagRequired("schedule")
	_ = emitCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(emitCmd)
}

func bookingMessage(ctx context.Context, topic, scheduleID, date string) (kafka.Message, error) {
	if _, err := uuid.Parse(scheduleID); err != nil {
		return kafka.Message{}, fmt.Errorf("invalid schedule id %q", scheduleID)
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return kafka.Message{}, fmt.Errorf("invalid date %q", date)
	}
	value, err := json.Marshal(map[string]string{"schedule_id": scheduleID, "date": date})
	if err != nil {
		return kafka.Message{}, err
	}
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(uuid.NewString())},
		{Key: "event_type", Value: []byte(topic)},
	}
	return kafka.Message{
		Key:     []byte(scheduleID),
		Value:   value,
		Headers: kafkax.InjectTraceHeaders(ctx, headers),
	}, nil
}

func runEmit(cmd *cobra.Command, _ []string) error {
	brokers := kafkax.SplitBrokers(emitBrokers)
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers given")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	msg, err := bookingMessage(ctx, emitTopic, emitScheduleID, emitDate)
	if err != nil {
		return err
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        emitTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer w.Close()
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", emitTopic, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %s for %s %s\n", emitTopic, emitScheduleID, emitDate)
	return nil
}
