package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/model"
	coremqtt "github.com/kilianp07/fleetsim/core/mqtt"
	inframetrics "github.com/kilianp07/fleetsim/infra/metrics"
	inframqtt "github.com/kilianp07/fleetsim/infra/mqtt"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func connectedVehicle(t *testing.T, opts ...VehicleOption) (*Vehicle, *inframqtt.MockPublisher) {
	t.Helper()
	pub := inframqtt.NewMockPublisher()
	v := NewVehicle("fleet-001", "vehicle-001", pub, opts...)
	require.NoError(t, v.Connect(context.Background()))
	return v, pub
}

func decodeAlerts(t *testing.T, pub *inframqtt.MockPublisher) []model.Alert {
	t.Helper()
	var out []model.Alert
	for _, raw := range pub.MessagesOn(model.Topic("fleet-001", "vehicle-001", model.KindAlert)) {
		var a model.Alert
		require.NoError(t, json.Unmarshal(raw, &a))
		out = append(out, a)
	}
	return out
}

func statuses(t *testing.T, pub *inframqtt.MockPublisher, fleetID, vehicleID string) []model.Status {
	t.Helper()
	var out []model.Status
	for _, raw := range pub.MessagesOn(model.Topic(fleetID, vehicleID, model.KindStatus)) {
		var s model.StatusMessage
		require.NoError(t, json.Unmarshal(raw, &s))
		out = append(out, s.Status)
	}
	return out
}

func TestCheckForAlertsSingleRule(t *testing.T) {
	v, pub := connectedVehicle(t)
	s := v.State()
	s.FuelLevel, s.EngineTemp, s.BatteryVoltage = 10, 200, 12

	require.NoError(t, v.CheckForAlerts(context.Background()))

	alerts := decodeAlerts(t, pub)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertLowFuel, alerts[0].Type)
	assert.Equal(t, "Fuel level critical: 10.0%", alerts[0].Message)
}

func TestCheckForAlertsAllRules(t *testing.T) {
	v, pub := connectedVehicle(t)
	s := v.State()
	s.FuelLevel, s.EngineTemp, s.BatteryVoltage = 4.25, 225.44, 11.634

	require.NoError(t, v.CheckForAlerts(context.Background()))

	alerts := decodeAlerts(t, pub)
	require.Len(t, alerts, 3)
	assert.Equal(t, model.AlertLowFuel, alerts[0].Type)
	assert.Equal(t, model.AlertHighTemp, alerts[1].Type)
	assert.Equal(t, "Engine overheating: 225.4F", alerts[1].Message)
	assert.Equal(t, model.AlertLowBattery, alerts[2].Type)
	assert.Equal(t, "Battery voltage low: 11.63V", alerts[2].Message)
}

func TestCheckForAlertsAtThresholds(t *testing.T) {
	v, pub := connectedVehicle(t)
	s := v.State()
	s.FuelLevel, s.EngineTemp, s.BatteryVoltage = LowFuelThreshold, HighTempThreshold, LowBatteryThreshold

	require.NoError(t, v.CheckForAlerts(context.Background()))
	assert.Empty(t, decodeAlerts(t, pub))
}

func TestCheckForAlertsReportsPublishErrors(t *testing.T) {
	v, pub := connectedVehicle(t)
	pub.FailTopics[model.Topic("fleet-001", "vehicle-001", model.KindAlert)] = errors.New("broker gone")
	v.State().FuelLevel = 1

	assert.Error(t, v.CheckForAlerts(context.Background()))
}

func TestPublishUsesClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	v, pub := connectedVehicle(t, WithClock(func() time.Time { return at }))

	require.NoError(t, v.PublishStatus(context.Background(), model.StatusActive))
	require.NoError(t, v.PublishTelemetry(context.Background()))

	var st model.StatusMessage
	require.NoError(t, json.Unmarshal(pub.Messages()[0].Payload, &st))
	assert.Equal(t, "2024-05-01T12:00:00.000000+00:00", st.Timestamp)
	assert.Equal(t, model.Topic("fleet-001", "vehicle-001", model.KindTelemetry), pub.Messages()[1].Topic)
}

func TestPublishBeforeConnect(t *testing.T) {
	v := NewVehicle("f", "v", inframqtt.NewMockPublisher())
	assert.ErrorIs(t, v.PublishLocation(context.Background()), coremqtt.ErrNotConnected)
}

func TestDisconnectIdempotent(t *testing.T) {
	pub := inframqtt.NewMockPublisher()
	v := NewVehicle("f", "v", pub)
	v.Disconnect()
	require.NoError(t, v.Connect(context.Background()))
	v.Disconnect()
	v.Disconnect()
	assert.Equal(t, 1, pub.Disconnects())
}

func TestRunLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := inframqtt.NewMockPublisher()
	locTopic := model.Topic("fleet-001", "vehicle-001", model.KindLocation)
	var locations atomic.Int32
	pub.OnPublish = func(topic string) {
		if topic == locTopic && locations.Add(1) == 4 {
			cancel()
		}
	}
	sink := inframetrics.NewSummarySink()
	rec := &eventRecorder{}
	v := NewVehicle("fleet-001", "vehicle-001", pub,
		WithTelemetryEvery(2),
		WithMetrics(sink),
		WithEvents(rec.record),
		WithSource(rand.NewPCG(1, 2)),
	)

	require.NoError(t, v.Run(ctx, 2*time.Millisecond))

	msgs := pub.Messages()
	require.NotEmpty(t, msgs)
	statusTopic := model.Topic("fleet-001", "vehicle-001", model.KindStatus)
	assert.Equal(t, statusTopic, msgs[0].Topic)
	assert.Equal(t, statusTopic, msgs[len(msgs)-1].Topic)
	assert.Equal(t, []model.Status{model.StatusActive, model.StatusOffline}, statuses(t, pub, "fleet-001", "vehicle-001"))
	assert.Len(t, pub.MessagesOn(locTopic), 4)
	assert.Len(t, pub.MessagesOn(model.Topic("fleet-001", "vehicle-001", model.KindTelemetry)), 2)
	assert.Equal(t, 1, pub.Disconnects())
	assert.False(t, pub.IsConnected())

	snap := sink.Snapshot()
	assert.Equal(t, 4, snap.Published[model.KindLocation])
	assert.Equal(t, 2, snap.Published[model.KindStatus])
	assert.Zero(t, snap.Active)
	assert.Equal(t, []EventType{EventConnected, EventActive, EventOffline}, rec.types())
}

func TestRunConnectFailure(t *testing.T) {
	pub := inframqtt.NewMockPublisher()
	pub.ConnectErr = errors.New("connection refused")
	rec := &eventRecorder{}
	v := NewVehicle("f", "v", pub, WithEvents(rec.record))

	err := v.Run(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, coremqtt.ErrConnect)
	assert.Empty(t, pub.Messages())
	assert.Zero(t, pub.Disconnects())
	assert.Equal(t, []EventType{EventConnectFailed}, rec.types())
}

func TestRunPublishFailureStillAnnouncesOffline(t *testing.T) {
	pub := inframqtt.NewMockPublisher()
	pub.FailTopics[model.Topic("f", "v", model.KindLocation)] = errors.New("write: broken pipe")
	rec := &eventRecorder{}
	v := NewVehicle("f", "v", pub, WithEvents(rec.record))

	err := v.Run(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, ErrRuntimeFault)
	assert.Equal(t, []model.Status{model.StatusActive, model.StatusOffline}, statuses(t, pub, "f", "v"))
	assert.Equal(t, 1, pub.Disconnects())
	assert.Equal(t, []EventType{EventConnected, EventActive, EventFault, EventOffline}, rec.types())
}

func TestRunActiveFailureStillDisconnects(t *testing.T) {
	pub := inframqtt.NewMockPublisher()
	pub.FailTopics[model.Topic("f", "v", model.KindStatus)] = errors.New("not authorized")
	v := NewVehicle("f", "v", pub)

	err := v.Run(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, ErrRuntimeFault)
	assert.Empty(t, pub.Messages())
	assert.Equal(t, 1, pub.Disconnects())
}

func TestRunRecoversPanic(t *testing.T) {
	pub := inframqtt.NewMockPublisher()
	locTopic := model.Topic("f", "v", model.KindLocation)
	pub.OnPublish = func(topic string) {
		if topic == locTopic {
			panic("sensor exploded")
		}
	}
	v := NewVehicle("f", "v", pub)

	err := v.Run(context.Background(), time.Millisecond)
	require.ErrorIs(t, err, ErrRuntimeFault)
	assert.Contains(t, err.Error(), "sensor exploded")
	assert.Equal(t, []model.Status{model.StatusActive, model.StatusOffline}, statuses(t, pub, "f", "v"))
	assert.Equal(t, 1, pub.Disconnects())
}

func TestRunRejectsNonPositiveInterval(t *testing.T) {
	pub := inframqtt.NewMockPublisher()
	v := NewVehicle("f", "v", pub)
	assert.Error(t, v.Run(context.Background(), 0))
	assert.Zero(t, pub.Connects())
}
