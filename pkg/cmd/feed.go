package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/flowrelay/flowrelay/pkg/channels/gochannel"
	"github.com/flowrelay/flowrelay/pkg/channels/kafka"
	"github.com/flowrelay/flowrelay/pkg/feed"
)

// NewFeed creates a change feed instance based on the transport provider.
func NewFeed(provider, serviceName string, logger *slog.Logger) feed.Feed {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return feed.NewWatermillFeed(pub, sub, logger)
	case "gochannel", "memory":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create GoChannel pub/sub: %w", err))
		}

		return feed.NewWatermillFeed(pub, sub, logger)
	default:
		panic("Unsupported change feed provider: " + provider)
	}
}
