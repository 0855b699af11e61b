package definition

// Identity describes which devices a definition applies to.
type Identity struct {
	Model        string        `yaml:"model" json:"model"`
	Vendor       string        `yaml:"vendor" json:"vendor"`
	Description  string        `yaml:"description" json:"description"`
	ZigbeeModels []string      `yaml:"zigbee_model" json:"zigbee_model,omitempty"`
	Fingerprints []Fingerprint `yaml:"fingerprint" json:"fingerprint,omitempty"`
	WhiteLabels  []WhiteLabel  `yaml:"white_label" json:"white_label,omitempty"`
}

// Fingerprint matches a device structurally. Empty fields match anything;
// each listed endpoint must exist on the device with at least the listed
// input clusters. When several fingerprints match, the highest Priority
// wins.
type Fingerprint struct {
	ModelID          string                `yaml:"model_id" json:"model_id,omitempty"`
	ManufacturerName string                `yaml:"manufacturer_name" json:"manufacturer_name,omitempty"`
	Endpoints        []FingerprintEndpoint `yaml:"endpoints" json:"endpoints,omitempty"`
	Priority         int                   `yaml:"priority" json:"priority,omitempty"`
}

// FingerprintEndpoint is one endpoint of a fingerprint.
type FingerprintEndpoint struct {
	ID            uint8    `yaml:"id" json:"id"`
	InputClusters []string `yaml:"input_clusters" json:"input_clusters,omitempty"`
}

// WhiteLabel is a rebranded product sold under another vendor and model.
type WhiteLabel struct {
	Vendor       string   `yaml:"vendor" json:"vendor"`
	Model        string   `yaml:"model" json:"model"`
	Description  string   `yaml:"description" json:"description,omitempty"`
	ZigbeeModels []string `yaml:"zigbee_model" json:"zigbee_model,omitempty"`
}

// DeviceInfo is what the interview learned about a device.
type DeviceInfo struct {
	ModelID          string
	ManufacturerName string
	Endpoints        []EndpointInfo
}

// EndpointInfo lists an endpoint's clusters by registry name.
type EndpointInfo struct {
	ID             uint8
	InputClusters  []string
	OutputClusters []string
}

// Matches reports whether the fingerprint matches info.
func (f Fingerprint) Matches(info DeviceInfo) bool {
	if f.ModelID != "" && f.ModelID != info.ModelID {
		return false
	}
	if f.ManufacturerName != "" && f.ManufacturerName != info.ManufacturerName {
		return false
	}
	for _, want := range f.Endpoints {
		var have *EndpointInfo
		for i := range info.Endpoints {
			if info.Endpoints[i].ID == want.ID {
				have = &info.Endpoints[i]
				break
			}
		}
		if have == nil {
			return false
		}
		for _, c := range want.InputClusters {
			if !contains(have.InputClusters, c) {
				return false
			}
		}
	}
	return true
}

// Resolve returns the identity a matching device is presented under: the
// white label whose zigbee model equals the device's, otherwise the
// definition's own.
func (id Identity) Resolve(info DeviceInfo) (vendor, model, description string) {
	for _, wl := range id.WhiteLabels {
		if contains(wl.ZigbeeModels, info.ModelID) {
			desc := wl.Description
			if desc == "" {
				desc = id.Description
			}
			return wl.Vendor, wl.Model, desc
		}
	}
	return id.Vendor, id.Model, id.Description
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
