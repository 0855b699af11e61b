package definition

import (
	"zigbee-capability/internal/extend"
)

// Merge folds bundles in declaration order into one bundle. Exposes are
// appended and a state key may be exposed only once; inbound converters are
// appended without conflict checks; a key may be owned by only one outbound
// converter; commissioning steps are concatenated. Merge does not modify its
// inputs.
func Merge(bundles ...extend.Bundle) (extend.Bundle, error) {
	var out extend.Bundle
	exposed := make(map[string]bool)
	owned := make(map[string]bool)

	for _, b := range bundles {
		for _, e := range b.Exposes {
			for _, key := range e.Properties() {
				if exposed[key] {
					return extend.Bundle{}, &DuplicateCapabilityOwnershipError{Kind: "expose", Key: key, Endpoint: e.Endpoint}
				}
				exposed[key] = true
			}
			out.Exposes = append(out.Exposes, e.Clone())
		}
		for _, o := range b.Outbound {
			for _, key := range o.Keys {
				if owned[key] {
					return extend.Bundle{}, &DuplicateCapabilityOwnershipError{Kind: "outbound", Key: key, Endpoint: o.Endpoint}
				}
				owned[key] = true
			}
			o.Keys = append([]string(nil), o.Keys...)
			out.Outbound = append(out.Outbound, o)
		}
		out.Inbound = append(out.Inbound, b.Inbound...)
		out.Configure = append(out.Configure, b.Configure...)
		out.Clusters = append(out.Clusters, b.Clusters...)
		out.Refs = append(out.Refs, b.Refs...)
		out.OTA = out.OTA || b.OTA
	}
	return out, nil
}
