package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/parley-ai/parley/pkg/channels/gochannel"
	"github.com/parley-ai/parley/pkg/channels/kafka"
	"github.com/parley-ai/parley/pkg/notifier"
)

// NewNotifierBus builds the operator notification bus for the given provider.
func NewNotifierBus(provider string, logger *slog.Logger) *notifier.Bus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, "parley")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return notifier.NewBus(pub, sub, logger)
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create GoChannel pub/sub: %w", err))
		}

		return notifier.NewBus(pub, sub, logger)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
