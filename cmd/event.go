package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/course-checkout/internal/core/events"
	"github.com/frahmantamala/course-checkout/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish sample checkout events to the bus and, when brokers are configured, to Kafka`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a sample event",
	Long: `Publish a sample checkout event for testing consumers.
Known types: checkout.session_initialized, payment.completed, payment.failed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context(), args[0])
	},
}

var (
	eventEnrollmentID int64
	eventToKafka      bool
)

func sampleEvent(eventType string, enrollmentID int64) (events.Event, error) {
	sessionID := fmt.Sprintf("sess_cli_%d", time.Now().Unix())
	switch eventType {
	case events.EventTypeSessionInitialized:
		return events.NewSessionInitializedEvent(sessionID, enrollmentID, 1500, "INR"), nil
	case events.EventTypePaymentCompleted:
		return events.NewPaymentCompletedEvent(sessionID, enrollmentID, "TXN000000000001", 1500, "INR", "card",
			"Distributed Systems", "Asha Rao", "asha@example.com"), nil
	case events.EventTypePaymentFailed:
		return events.NewPaymentFailedEvent(sessionID, enrollmentID, 1500, "PAYMENT_DECLINED",
			"Payment was declined by the bank.", 1), nil
	}
	return nil, fmt.Errorf("unknown event type %q", eventType)
}

func publishTestEvent(ctx context.Context, eventType string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lg := logger.LoggerWrapper()

	event, err := sampleEvent(eventType, eventEnrollmentID)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus(lg)
	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		lg.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	if eventToKafka {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is not configured")
		}
		writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer writer.Close()
		events.NewKafkaForwarder(writer, lg).Register(eventBus)
	}

	lg.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	if err := eventBus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	lg.Info("test event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().Int64Var(&eventEnrollmentID, "enrollment", 11, "enrollment id carried by the event")
	publishEventCmd.Flags().BoolVar(&eventToKafka, "kafka", false, "also forward to the configured Kafka topic")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
