package ingest

import (
	"context"
	"testing"

	"github.com/aegisstack/aegis-fusion/internal/config"
	"github.com/aegisstack/aegis-fusion/internal/geo"
)

func defaultMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "test",
		Topic:    "tracking/+/position",
		QoS:      1,
	}
}

type recordedUpdate struct {
	unitID string
	pos    geo.Point
	speed  *float64
}

type fakeUpdater struct {
	updates []recordedUpdate
}

func (f *fakeUpdater) UpdateUnitPosition(_ context.Context, unitID string, pos geo.Point, _, _, speed *float64) error {
	f.updates = append(f.updates, recordedUpdate{unitID: unitID, pos: pos, speed: speed})
	return nil
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestHandlePositionReport(t *testing.T) {
	updater := &fakeUpdater{}
	c := NewConsumer(defaultMQTTConfig(), updater, nil)

	c.handle(context.Background(), fakeMessage{
		topic:   "tracking/alpha-1/position",
		payload: []byte(`{"latitude": 34.0522, "longitude": -118.2437, "speed": 4.5}`),
	})

	if len(updater.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updater.updates))
	}
	u := updater.updates[0]
	if u.unitID != "alpha-1" {
		t.Errorf("unit id = %q", u.unitID)
	}
	if u.pos.Lat != 34.0522 || u.pos.Lon != -118.2437 {
		t.Errorf("position = %+v", u.pos)
	}
	if u.speed == nil || *u.speed != 4.5 {
		t.Errorf("speed = %v", u.speed)
	}
}

func TestHandleDiscardsBadInput(t *testing.T) {
	updater := &fakeUpdater{}
	c := NewConsumer(defaultMQTTConfig(), updater, nil)
	ctx := context.Background()

	c.handle(ctx, fakeMessage{topic: "tracking/position", payload: []byte(`{}`)})
	c.handle(ctx, fakeMessage{topic: "other/alpha/position", payload: []byte(`{}`)})
	c.handle(ctx, fakeMessage{topic: "tracking/alpha/position", payload: []byte(`not json`)})

	if len(updater.updates) != 0 {
		t.Errorf("updates = %d, want 0", len(updater.updates))
	}
}

func TestHandleIgnoresAfterCancel(t *testing.T) {
	updater := &fakeUpdater{}
	c := NewConsumer(defaultMQTTConfig(), updater, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.handle(ctx, fakeMessage{
		topic:   "tracking/alpha/position",
		payload: []byte(`{"latitude": 34, "longitude": -118}`),
	})
	if len(updater.updates) != 0 {
		t.Errorf("updates = %d, want 0", len(updater.updates))
	}
}

func TestUnitIDFromTopic(t *testing.T) {
	cases := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"tracking/alpha-1/position", "alpha-1", true},
		{"tracking//position", "", false},
		{"tracking/alpha-1/status", "", false},
		{"alpha-1/position", "", false},
	}
	for _, tc := range cases {
		got, err := UnitIDFromTopic(tc.topic)
		if tc.wantOK && (err != nil || got != tc.want) {
			t.Errorf("UnitIDFromTopic(%q) = %q, %v", tc.topic, got, err)
		}
		if !tc.wantOK && err == nil {
			t.Errorf("UnitIDFromTopic(%q) should fail", tc.topic)
		}
	}
}
