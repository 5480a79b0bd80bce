package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	assert.Empty(t, Brokers(""))
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers(" a:9092, ,b:9092 "))
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	_, _, err := CreateChannel(watermill.NopLogger{}, "fanflow-worker")
	assert.ErrorIs(t, err, ErrNoBrokers)
}
