package mqtt

import (
	"context"
	"fmt"
	"sync"

	coremqtt "github.com/kilianp07/fleetsim/core/mqtt"
)

// Publisher mirrors the core mqtt.Publisher interface.
type Publisher = coremqtt.Publisher

// Message is a payload recorded by MockPublisher.
type Message struct {
	Topic   string
	Payload []byte
}

// MockPublisher is an in-memory publisher used in tests.
type MockPublisher struct {
	// ConnectErr is returned by Connect when set.
	ConnectErr error
	// FailTopics makes Publish fail for the listed topics.
	FailTopics map[string]error
	// OnPublish, when set, runs before a message is recorded.
	OnPublish func(topic string)

	mu          sync.Mutex
	connected   bool
	connects    int
	disconnects int
	messages    []Message
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{FailTopics: make(map[string]error)}
}

// Connect marks the publisher connected or returns ConnectErr.
func (m *MockPublisher) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.ConnectErr != nil {
		return fmt.Errorf("%w: %v", coremqtt.ErrConnect, m.ConnectErr)
	}
	m.connected = true
	return nil
}

// Publish records the message or returns an error if configured to fail.
func (m *MockPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	if m.OnPublish != nil {
		m.OnPublish(topic)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return coremqtt.ErrNotConnected
	}
	if err, ok := m.FailTopics[topic]; ok {
		return err
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.messages = append(m.messages, Message{Topic: topic, Payload: cp})
	return nil
}

// Disconnect marks the publisher disconnected.
func (m *MockPublisher) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.disconnects++
	}
	m.connected = false
}

// IsConnected implements Publisher.
func (m *MockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Messages returns a copy of every recorded message in publish order.
func (m *MockPublisher) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// MessagesOn returns the payloads recorded for topic.
func (m *MockPublisher) MessagesOn(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	for _, msg := range m.messages {
		if msg.Topic == topic {
			out = append(out, msg.Payload)
		}
	}
	return out
}

// Disconnects returns how many times an open session was closed.
func (m *MockPublisher) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// Connects returns how many times Connect was called.
func (m *MockPublisher) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}
