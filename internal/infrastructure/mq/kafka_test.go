package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisherSendsKeyedMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "fintrack.rule.applied" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "RUN1" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})

	p := NewKafkaPublisher(producer)
	require.NoError(t, p.Publish("fintrack.rule.applied", "RUN1", `{"rule_id":1}`))
	require.NoError(t, p.Close())
}

func TestKafkaPublisherReturnsBrokerError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	p := NewKafkaPublisher(producer)
	require.ErrorIs(t, p.Publish("t", "k", "v"), sarama.ErrNotLeaderForPartition)
	require.NoError(t, p.Close())
}
