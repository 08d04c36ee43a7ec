package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTypedWithBuffer[string](DefaultBuffer)
	ch := bus.Subscribe()
	bus.Publish("hello")
	v := <-ch
	assert.Equal(t, "hello", v)
	bus.Close()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTypedWithBuffer[int](DefaultBuffer)
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	bus.Close()
	_, ok := <-ch1
	assert.False(t, ok, "expected ch1 closed")
	_, ok = <-ch2
	assert.False(t, ok, "expected ch2 closed")

	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribe after close returns a closed channel")
	bus.Publish(1)
}

func TestTypedBusDropsWhenFull(t *testing.T) {
	bus := NewTypedWithBuffer[int](2)
	ch := bus.Subscribe()
	for i := 0; i < 5; i++ {
		bus.Publish(i)
	}
	assert.Equal(t, uint64(3), bus.Dropped())
	require.Len(t, ch, 2)
	assert.Equal(t, 0, <-ch)
	assert.Equal(t, 1, <-ch)
}

func TestTypedBusConcurrentPublishers(t *testing.T) {
	const publishers, perPublisher = 4, 25
	bus := NewTypedWithBuffer[int](publishers * perPublisher)
	ch := bus.Subscribe()

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				bus.Publish(i)
			}
		}()
	}
	wg.Wait()
	bus.Close()

	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, publishers*perPublisher, n)
	assert.Zero(t, bus.Dropped())
}
