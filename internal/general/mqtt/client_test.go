package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicSegment(t *testing.T) {
	const pattern = "/fleet/vehicle/+/location"

	tests := []struct {
		topic string
		want  string
	}{
		{"/fleet/vehicle/V1/location", "V1"},
		{"/fleet/vehicle/bus-42/location", "bus-42"},
		{"/fleet/vehicle/V1/status", ""},
		{"/fleet/vehicle/location", ""},
		{"/fleet/truck/V1/location", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TopicSegment(pattern, tt.topic), tt.topic)
	}
}
