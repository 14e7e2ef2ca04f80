package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomAttribute(t *testing.T) {
	attr := RoomAttribute(42)
	assert.Equal(t, "convene.room_id", string(attr.Key))
	assert.Equal(t, int64(42), attr.Value.AsInt64())
}

func TestClientAttribute(t *testing.T) {
	attr := ClientAttribute(7)
	assert.Equal(t, "convene.client_id", string(attr.Key))
	assert.Equal(t, int64(7), attr.Value.AsInt64())
}

func TestStartSpan_ReturnsUsableSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span", ClientAttribute(1))
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	span.End()
}
