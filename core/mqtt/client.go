package mqtt

import "context"

// Publisher is the session a simulated vehicle holds with the broker.
type Publisher interface {
	// Connect opens the session. The client library keeps the network loop
	// running in the background until Disconnect is called.
	Connect(ctx context.Context) error

	// Publish sends payload to topic and waits for the client to hand it off.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Disconnect closes the session. It is idempotent and safe to call on a
	// publisher that never connected.
	Disconnect()

	IsConnected() bool
}
