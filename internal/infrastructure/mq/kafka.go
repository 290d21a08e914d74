package mq

import (
	"fmt"

	"fintrack/internal/config"

	"github.com/IBM/sarama"
)

// Publisher sends one keyed message and waits for the broker's ack.
type Publisher interface {
	Publish(topic, key, value string) error
	Close() error
}

// KafkaPublisher sends each message synchronously.
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewProducerConfig waits for all in-sync replicas and retries three times.
func NewProducerConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	return kafkaConfig
}

// InitKafka creates the sync producer used by the outbox sender.
func InitKafka(cfg *config.KafkaConfig) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisher(producer), nil
}

// NewKafkaPublisher wraps an existing producer, real or mock.
func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
