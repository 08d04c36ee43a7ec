// Package util provides helper functions shared across integration tests.
//
// StartMosquitto launches a disposable Mosquitto broker in a Docker container
// for MQTT-based tests. It returns the broker address and a cleanup function.
//
// Subscribe records every message published under a topic filter.
//
// WaitForMetric polls a Prometheus metrics endpoint until the desired metric
// appears in the output.
package util

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// Default timeouts for helper operations
	MosquittoReadyTimeout = 5 * time.Second
	MetricTimeout         = 5 * time.Second

	pollInterval = 50 * time.Millisecond
)

// Broker locates a running test broker.
type Broker struct {
	Host string
	Port int
}

// URL returns the paho address of the broker.
func (b Broker) URL() string {
	return "tcp://" + net.JoinHostPort(b.Host, fmt.Sprint(b.Port))
}

// WaitForMetric polls the given metrics URL until the provided substring is
// found in the output or the context is done.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			body, rerr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if rerr != nil {
				return fmt.Errorf("read metrics body: %w", rerr)
			}
			if strings.Contains(string(body), substr) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("metric %q not found: %w", substr, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// FreeAddr returns a loopback address with a currently unused TCP port.
func FreeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		return "", err
	}
	return addr, nil
}

// StartMosquitto launches a temporary Mosquitto broker inside a Docker
// container and returns its address along with a cleanup function.
func StartMosquitto(ctx context.Context) (Broker, func(), error) {
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
log_type notice
connection_messages true
`

	dir, err := os.MkdirTemp("", "mosq")
	if err != nil {
		return Broker{}, nil, err
	}
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		_ = os.RemoveAll(dir)
		return Broker{}, nil, err
	}

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		_ = os.RemoveAll(dir)
		return Broker{}, nil, err
	}

	cleanup := func() {
		_ = cont.Terminate(context.Background())
		_ = os.RemoveAll(dir)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		cleanup()
		return Broker{}, nil, err
	}
	broker := Broker{Host: host, Port: port.Int()}

	waitCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	if err := waitForMQTTReady(waitCtx, broker.URL()); err != nil {
		cleanup()
		return Broker{}, nil, err
	}

	return broker, cleanup, nil
}

func waitForMQTTReady(ctx context.Context, broker string) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	for {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Message is a payload received by a Recorder.
type Message struct {
	Topic   string
	Payload []byte
}

// Recorder keeps every message received on a subscription.
type Recorder struct {
	cli  paho.Client
	mu   sync.Mutex
	msgs []Message
}

// Subscribe connects a dedicated client and records messages matching filter.
func Subscribe(ctx context.Context, broker, filter string) (*Recorder, error) {
	r := &Recorder{}
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("recorder-" + uuid.NewString()[:8])
	r.cli = paho.NewClient(opts)
	if err := await(ctx, r.cli.Connect()); err != nil {
		return nil, fmt.Errorf("recorder connect: %w", err)
	}
	handler := func(_ paho.Client, m paho.Message) {
		r.mu.Lock()
		r.msgs = append(r.msgs, Message{Topic: m.Topic(), Payload: m.Payload()})
		r.mu.Unlock()
	}
	if err := await(ctx, r.cli.Subscribe(filter, 1, handler)); err != nil {
		r.cli.Disconnect(0)
		return nil, fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return r, nil
}

// On returns the payloads received on topic in arrival order.
func (r *Recorder) On(topic string) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]byte
	for _, m := range r.msgs {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// Close disconnects the recorder.
func (r *Recorder) Close() {
	r.cli.Disconnect(100)
}

func await(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
