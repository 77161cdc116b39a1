package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewKafkaProducer(t *testing.T) {
	t.Run("returns an error when no brokers are provided", func(t *testing.T) {
		p, err := NewKafkaProducer(nil)
		assert.EqualError(t, err, "brokers cannot be empty")
		assert.Nil(t, p)
	})

	t.Run("creates a producer successfully 🎉", func(t *testing.T) {
		p, err := NewKafkaProducer([]string{"localhost:9092"})
		require.NoError(t, err)
		assert.Equal(t, KafkaEventBrokerType, p.BrokerType())
	})
}

func Test_NewKafkaConsumer(t *testing.T) {
	ctx := context.Background()

	handler := &MockEventHandler{}
	handler.On("Name").Return("TestHandler")

	testCases := []struct {
		name            string
		brokers         []string
		topic           string
		consumerGroupID string
		handlers        []EventHandler
		wantErr         string
	}{
		{
			name:    "returns an error when no brokers are provided",
			wantErr: "brokers cannot be empty",
		},
		{
			name:    "returns an error when no topic is provided",
			brokers: []string{"localhost:9092"},
			wantErr: "topic cannot be empty",
		},
		{
			name:            "returns an error when no consumer group ID is provided",
			brokers:         []string{"localhost:9092"},
			topic:           PaymentInitiatedTopic,
			consumerGroupID: "",
			wantErr:         "consumer group ID cannot be empty",
		},
		{
			name:            "returns an error when no handlers are provided",
			brokers:         []string{"localhost:9092"},
			topic:           PaymentInitiatedTopic,
			consumerGroupID: "group-id",
			wantErr:         "registering event handlers: handlers cannot be empty",
		},
		{
			name:            "creates a consumer successfully 🎉",
			brokers:         []string{"localhost:9092"},
			topic:           PaymentInitiatedTopic,
			consumerGroupID: "group-id",
			handlers:        []EventHandler{handler},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewKafkaConsumer(tc.brokers, tc.topic, tc.consumerGroupID, tc.handlers...)
			if tc.wantErr != "" {
				assert.EqualError(t, err, tc.wantErr)
				assert.Nil(t, c)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.topic, c.Topic())
				assert.Equal(t, tc.handlers, c.Handlers())
				assert.Equal(t, KafkaEventBrokerType, c.BrokerType())
			}
		})
	}

	t.Run("RegisterEventHandler appends to the handler chain", func(t *testing.T) {
		c, err := NewKafkaConsumer([]string{"localhost:9092"}, PaymentInitiatedTopic, "group-id", handler)
		require.NoError(t, err)
		require.Len(t, c.Handlers(), 1)

		anotherHandler := &MockEventHandler{}
		anotherHandler.On("Name").Return("AnotherTestHandler")

		err = c.RegisterEventHandler(ctx, anotherHandler)
		require.NoError(t, err)
		assert.Equal(t, []EventHandler{handler, anotherHandler}, c.Handlers())

		err = c.RegisterEventHandler(ctx)
		assert.EqualError(t, err, "handlers cannot be empty")
	})
}
