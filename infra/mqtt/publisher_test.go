package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/kilianp07/fleetsim/core/mqtt"
)

func TestMockPublisherRecords(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()
	assert.ErrorIs(t, m.Publish(ctx, "a", []byte("1")), coremqtt.ErrNotConnected)

	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Publish(ctx, "a", []byte("1")))
	require.NoError(t, m.Publish(ctx, "b", []byte("2")))
	require.NoError(t, m.Publish(ctx, "a", []byte("3")))

	assert.Len(t, m.Messages(), 3)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("3")}, m.MessagesOn("a"))

	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, 1, m.Disconnects())
	assert.False(t, m.IsConnected())
}

func TestMockPublisherFailures(t *testing.T) {
	m := NewMockPublisher()
	m.ConnectErr = errors.New("refused")
	assert.ErrorIs(t, m.Connect(context.Background()), coremqtt.ErrConnect)
	assert.Equal(t, 1, m.Connects())

	m = NewMockPublisher()
	boom := errors.New("boom")
	m.FailTopics["a"] = boom
	require.NoError(t, m.Connect(context.Background()))
	assert.ErrorIs(t, m.Publish(context.Background(), "a", nil), boom)
	assert.Empty(t, m.Messages())
}

var _ Publisher = (*MockPublisher)(nil)
var _ Publisher = (*PahoPublisher)(nil)
