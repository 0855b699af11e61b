package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"zigbee-capability/internal/coordinator"
	"zigbee-capability/internal/ncp"
)

// envPrefix prefixes the environment variables that override secrets and
// site-specific settings from the config file.
const envPrefix = "ZIGBEE_CAPABILITY_"

type Config struct {
	NCP     ncp.Config `yaml:"ncp"`
	Network struct {
		// PermitJoin opens the network for this many seconds at startup.
		PermitJoin uint8 `yaml:"permit_join"`
	} `yaml:"network"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"client_id"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Commission struct {
		Timeout               time.Duration `yaml:"timeout"`
		ReconfigureOnAnnounce bool          `yaml:"reconfigure_on_announce"`
	} `yaml:"commission"`
	Scripts struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"scripts"`
	DevicesDir string `yaml:"devices_dir"`
}

// defaultConfig is the configuration a file is decoded over.
func defaultConfig() *Config {
	cfg := &Config{DevicesDir: "devices"}
	cfg.NCP = ncp.Config{Type: ncp.OfflineBackend, Baud: 460800}
	cfg.Web.Listen = "127.0.0.1:8080"
	cfg.Store.Path = "zigbee-capability.db"
	cfg.MQTT.TopicPrefix = "zigbee2mqtt"
	cfg.Commission.Timeout = coordinator.DefaultCommissionTimeout
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func parseConfig(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides settings from ZIGBEE_CAPABILITY_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for name, dst := range map[string]*string{
		"NCP_PORT":      &c.NCP.Port,
		"WEB_API_KEY":   &c.Web.APIKey,
		"MQTT_BROKER":   &c.MQTT.Broker,
		"MQTT_USERNAME": &c.MQTT.Username,
		"MQTT_PASSWORD": &c.MQTT.Password,
	} {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.NCP.Type != ncp.OfflineBackend && c.NCP.Port == "" {
		errs = append(errs, fmt.Errorf("ncp.port is required for backend %q", c.NCP.Type))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.Commission.Timeout < 0 {
		errs = append(errs, errors.New("commission.timeout must not be negative"))
	}
	if c.Scripts.Timeout < 0 {
		errs = append(errs, errors.New("scripts.timeout must not be negative"))
	}
	if _, err := c.logLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func newLogger(cfg *Config) *slog.Logger {
	level, _ := cfg.logLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
