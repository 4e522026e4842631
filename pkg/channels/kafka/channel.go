// Package kafka provides the Kafka transport for the event bus.
package kafka

import (
	"fmt"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

// consumerGroupPrefix namespaces flowline consumer groups on shared clusters.
const consumerGroupPrefix = "flowline-"

// Config carries the broker connection settings for one service. The consumer
// group is derived from the service name so api, worker, scheduler and
// dispatcher each keep their own offsets.
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string
}

// ConfigFromEnv builds the channel config from KAFKA_BROKERS.
func ConfigFromEnv(serviceName string) (Config, error) {
	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return Config{}, fmt.Errorf("KAFKA_BROKERS environment variable is not set or empty")
	}

	return Config{
		Brokers:       brokers,
		ConsumerGroup: consumerGroupPrefix + serviceName,
		ClientID:      consumerGroupPrefix + serviceName,
	}, nil
}

// CreateChannel builds the publisher/subscriber pair for one service.
func CreateChannel(logger watermill.LoggerAdapter, serviceName string) (*kafka.Publisher, *kafka.Subscriber, error) {
	config, err := ConfigFromEnv(serviceName)
	if err != nil {
		return nil, nil, err
	}

	subscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	subscriberConfig.ClientID = config.ClientID
	// A fresh group starts from the earliest offset; resume requests may
	// predate the first worker start.
	subscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               config.Brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: subscriberConfig,
			ConsumerGroup:         config.ConsumerGroup,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
	}

	publisherConfig := sarama.NewConfig()
	publisherConfig.ClientID = config.ClientID
	publisherConfig.Producer.Return.Successes = true
	// Resume and cancel events are load-bearing; wait for the full ISR.
	publisherConfig.Producer.RequiredAcks = sarama.WaitForAll

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               config.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: publisherConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return publisher, subscriber, nil
}
