package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerList(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want []string
	}{
		{name: "unset", env: "", want: nil},
		{name: "single broker", env: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "trailing comma", env: "a:9092,b:9092,", want: []string{"a:9092", "b:9092"}},
		{name: "padded entries", env: " a:9092 , b:9092", want: []string{"a:9092", "b:9092"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KAFKA_BROKERS", tt.env)
			assert.Equal(t, tt.want, brokerList())
		})
	}
}
