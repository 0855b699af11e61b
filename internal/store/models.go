package store

import (
	"fmt"
	"time"
)

// Device represents a paired Zigbee device.
type Device struct {
	IEEEAddress      string     `json:"ieee_address"`
	ShortAddress     uint16     `json:"short_address"`
	ManufacturerName string     `json:"manufacturer_name,omitempty"`
	ModelID          string     `json:"model_id,omitempty"`
	PowerSource      string     `json:"power_source,omitempty"`
	FriendlyName     string     `json:"friendly_name,omitempty"`
	Endpoints        []Endpoint `json:"endpoints,omitempty"`
	Interviewed      bool       `json:"interviewed"`
	JoinedAt         time.Time  `json:"joined_at"`
	LastSeen         time.Time  `json:"last_seen"`
	LQI              uint8      `json:"lqi,omitempty"`
	RSSI             int8       `json:"rssi,omitempty"`

	// Definition is the model of the matched device definition, empty for
	// unsupported devices.
	Definition string `json:"definition,omitempty"`
	// Attributes caches the last received value of each attribute, keyed
	// by AttributeKey.
	Attributes map[string]any `json:"attributes,omitempty"`
	Commission *Commission    `json:"commission,omitempty"`
	// Options are per-device converter options set by the user.
	Options map[string]any `json:"options,omitempty"`
	// Generated marks a definition built from the device's clusters
	// because no known definition matched.
	Generated bool `json:"generated,omitempty"`
}

// AttributeKey is the Attributes map key for one endpoint attribute.
func AttributeKey(ep uint8, cluster, attribute string) string {
	return fmt.Sprintf("%d/%s/%s", ep, cluster, attribute)
}

// Endpoint represents a device endpoint.
type Endpoint struct {
	ID          uint8    `json:"id"`
	ProfileID   uint16   `json:"profile_id"`
	DeviceID    uint16   `json:"device_id"`
	InClusters  []uint16 `json:"in_clusters"`
	OutClusters []uint16 `json:"out_clusters"`
}

// Commission records the outcome of the last commissioning run.
type Commission struct {
	At        time.Time `json:"at"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Errors    []string  `json:"errors,omitempty"`
}

// Complete reports whether every step succeeded.
func (c *Commission) Complete() bool {
	return c != nil && c.Failed == 0 && c.Skipped == 0
}
