// Package extend provides capability builders. Each builder is a pure
// function from a config to a Bundle of capability metadata, converters and
// commissioning steps; no protocol I/O happens at build time.
package extend

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/exposes"
	"zigbee-capability/internal/zcl"
)

// Bundle is the output of one builder invocation.
type Bundle struct {
	Exposes   []*exposes.Expose
	Inbound   []converter.Inbound
	Outbound  []converter.Outbound
	Configure []commission.Step
	OTA       bool
	// Clusters are custom cluster definitions to register before the
	// registry is frozen.
	Clusters []zcl.ClusterDef
	// Refs are the cluster members the converters address by name. They are
	// resolved against the frozen registry at assembly.
	Refs []Ref
}

// Ref is a reference to a cluster attribute or command.
type Ref struct {
	Cluster string
	Member  string
	Command bool
}

func attrRefs(cluster string, attrs ...string) []Ref {
	refs := make([]Ref, len(attrs))
	for i, a := range attrs {
		refs[i] = Ref{Cluster: cluster, Member: a}
	}
	return refs
}

func (b *Bundle) add(other Bundle) {
	b.Exposes = append(b.Exposes, other.Exposes...)
	b.Inbound = append(b.Inbound, other.Inbound...)
	b.Outbound = append(b.Outbound, other.Outbound...)
	b.Configure = append(b.Configure, other.Configure...)
	b.Clusters = append(b.Clusters, other.Clusters...)
	b.Refs = append(b.Refs, other.Refs...)
	b.OTA = b.OTA || other.OTA
}

// InvalidBuilderConfigError reports a structurally invalid builder config.
type InvalidBuilderConfigError struct {
	Builder string
	Reason  string
}

func (e *InvalidBuilderConfigError) Error() string {
	return fmt.Sprintf("extend: invalid %s config: %s", e.Builder, e.Reason)
}

func invalid(builder, format string, args ...any) error {
	return &InvalidBuilderConfigError{Builder: builder, Reason: fmt.Sprintf(format, args...)}
}

// endpointList returns the endpoint names a builder expands over. An omitted
// list means the single default endpoint, reported as "". An explicitly
// empty list is a config error.
func endpointList(builder string, eps []string) ([]string, error) {
	if eps == nil {
		return []string{""}, nil
	}
	if len(eps) == 0 {
		return nil, invalid(builder, "endpoint list is empty")
	}
	seen := make(map[string]bool, len(eps))
	for _, e := range eps {
		if e == "" || e == converter.DefaultEndpoint {
			return nil, invalid(builder, "endpoint name %q is reserved", e)
		}
		if seen[e] {
			return nil, invalid(builder, "duplicate endpoint %q", e)
		}
		seen[e] = true
	}
	return eps, nil
}

func scoped(e *exposes.Expose, endpoint string) *exposes.Expose {
	if endpoint != "" {
		e.WithEndpoint(endpoint)
	}
	return e
}

// Interval is a reporting interval in seconds. In YAML it accepts a number
// or one of SECOND, MINUTE, HOUR, MAX.
type Interval uint16

func (iv *Interval) UnmarshalYAML(node *yaml.Node) error {
	switch strings.ToUpper(node.Value) {
	case "SECOND":
		*iv = Interval(zcl.RepIntervalSecond)
	case "MINUTE":
		*iv = Interval(zcl.RepIntervalMinute)
	case "HOUR":
		*iv = Interval(zcl.RepIntervalHour)
	case "MAX":
		*iv = Interval(zcl.RepIntervalMax)
	default:
		n, err := strconv.ParseUint(node.Value, 10, 16)
		if err != nil {
			return fmt.Errorf("line %d: invalid interval %q", node.Line, node.Value)
		}
		*iv = Interval(n)
	}
	return nil
}

// ReportingConfig configures attribute reporting for a builder. A nil
// *ReportingConfig disables reporting.
type ReportingConfig struct {
	Min    Interval `yaml:"min"`
	Max    Interval `yaml:"max"`
	Change float64  `yaml:"change"`
}

func (r *ReportingConfig) validate(builder string) error {
	if r == nil {
		return nil
	}
	if r.Max != 0 && r.Min > r.Max {
		return invalid(builder, "reporting min %d > max %d", r.Min, r.Max)
	}
	if r.Change < 0 {
		return invalid(builder, "negative reportable change")
	}
	return nil
}

func (r *ReportingConfig) item(attr string) converter.Reporting {
	return converter.Reporting{Attribute: attr, Min: uint16(r.Min), Max: uint16(r.Max), Change: r.Change}
}

func options(mfr uint16) converter.Options {
	return converter.Options{ManufacturerCode: mfr}
}
