package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers("a:9092, b:9092,"))
	assert.Nil(t, Brokers(""))
}

func TestNewWriterKeepsTopic(t *testing.T) {
	w := NewWriter("a:9092,b:9092", "match_notifications")
	assert.Equal(t, "match_notifications", w.Topic)
}
