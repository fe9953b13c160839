// Package ingest consumes field-sensor position reports from MQTT and
// feeds them into the tactical service.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/aegisstack/aegis-fusion/internal/config"
	"github.com/aegisstack/aegis-fusion/internal/geo"
)

// PositionUpdater is the slice of the tactical service the consumer needs.
type PositionUpdater interface {
	UpdateUnitPosition(ctx context.Context, unitID string, pos geo.Point, altitude, heading, speed *float64) error
}

// positionReport is the wire payload published by tracker hardware to
// tracking/{unit_id}/position.
type positionReport struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// Consumer subscribes to the position topic and applies each report.
type Consumer struct {
	cfg     config.MQTTConfig
	updater PositionUpdater
	logger  *slog.Logger
	client  mqtt.Client
}

// NewConsumer creates a Consumer. Call Start to connect.
func NewConsumer(cfg config.MQTTConfig, updater PositionUpdater, logger *slog.Logger) *Consumer {
	return &Consumer{cfg: cfg, updater: updater, logger: logger}
}

// Start connects to the broker and subscribes. Reports arriving after ctx
// is cancelled are dropped.
func (c *Consumer) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetUsername(c.cfg.Username).
		SetPassword(c.cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(client mqtt.Client) {
			token := client.Subscribe(c.cfg.Topic, c.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
				c.handle(ctx, msg)
			})
			token.Wait()
			if err := token.Error(); err != nil && c.logger != nil {
				c.logger.Error("mqtt subscribe failed", "topic", c.cfg.Topic, "error", err)
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			if c.logger != nil {
				c.logger.Warn("mqtt connection lost", "error", err)
			}
		})

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect mqtt broker %s: %w", c.cfg.Broker, err)
	}
	if c.logger != nil {
		c.logger.Info("mqtt consumer started", "broker", c.cfg.Broker, "topic", c.cfg.Topic)
	}
	return nil
}

// Stop disconnects from the broker.
func (c *Consumer) Stop() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func (c *Consumer) handle(ctx context.Context, msg mqtt.Message) {
	if ctx.Err() != nil {
		return
	}
	unitID, err := UnitIDFromTopic(msg.Topic())
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("discarding position report", "topic", msg.Topic(), "error", err)
		}
		return
	}
	var report positionReport
	if err := json.Unmarshal(msg.Payload(), &report); err != nil {
		if c.logger != nil {
			c.logger.Warn("discarding malformed position report", "unit_id", unitID, "error", err)
		}
		return
	}

	pos := geo.Point{Lat: report.Latitude, Lon: report.Longitude}
	if err := c.updater.UpdateUnitPosition(ctx, unitID, pos, report.Altitude, report.Heading, report.Speed); err != nil {
		if c.logger != nil {
			c.logger.Warn("position update rejected", "unit_id", unitID, "error", err)
		}
	}
}

// UnitIDFromTopic extracts the unit id from tracking/{unit_id}/position.
func UnitIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "tracking" || parts[2] != "position" || parts[1] == "" {
		return "", fmt.Errorf("unexpected topic %q", topic)
	}
	return parts[1], nil
}
