// Package kafka publishes control network events to a Kafka topic.
//
// It wraps segmentio/kafka-go's Writer with the producer settings from
// config.KafkaConfig. Records are keyed so that events about the same
// entity keep their order within a partition.
//
// Usage:
//
//	p, err := kafka.NewProducer(cfg.Kafka)
//	if errors.Is(err, kafka.ErrDisabled) {
//	    // export not configured
//	}
//	defer p.Close()
//
//	err = p.Publish(ctx, kafka.Message{Key: "main", Value: payload})
package kafka
