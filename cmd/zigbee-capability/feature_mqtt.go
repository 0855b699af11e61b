//go:build !no_mqtt

package main

import (
	"log/slog"

	"zigbee-capability/internal/coordinator"
	mqttbridge "zigbee-capability/internal/mqtt"
)

type mqttStopper struct {
	bridge *mqttbridge.Bridge
}

func (m *mqttStopper) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

// initMQTT connects the bridge. A broker that cannot be reached is logged
// and the process keeps serving the web API.
func initMQTT(coord *coordinator.Coordinator, cfg *Config, logger *slog.Logger) *mqttStopper {
	if !cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	bridge, err := mqttbridge.NewBridge(coord, mqttbridge.Config{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	if err != nil {
		logger.Error("mqtt bridge", "broker", cfg.MQTT.Broker, "err", err)
		return &mqttStopper{}
	}
	bridge.Start()
	logger.Info("mqtt bridge started", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	return &mqttStopper{bridge: bridge}
}
