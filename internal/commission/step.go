// Package commission runs the one-time configuration of a paired device:
// bindings, attribute reporting, configuration writes, priming reads and
// device metadata repair.
package commission

import (
	"fmt"
	"strings"

	"zigbee-capability/internal/converter"
)

// Kind selects the phase a step runs in.
type Kind int

// Phases, in execution order.
const (
	KindBind Kind = iota
	KindReport
	KindWrite
	KindRead
	KindRepair
)

func (k Kind) String() string {
	switch k {
	case KindBind:
		return "bind"
	case KindReport:
		return "report"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindRepair:
		return "repair"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Step is one declarative commissioning action. Endpoint is a logical name
// resolved through the device's endpoint map; empty means the default
// endpoint.
type Step struct {
	Kind        Kind
	Endpoint    string
	Cluster     string
	Reporting   []converter.Reporting // KindReport
	Values      map[string]any        // KindWrite
	Attributes  []string              // KindRead
	PowerSource string                // KindRepair
	Options     converter.Options
}

func (s Step) String() string {
	var b strings.Builder
	b.WriteString(s.Kind.String())
	if s.Cluster != "" {
		b.WriteString(" ")
		b.WriteString(s.Cluster)
	}
	if s.Endpoint != "" {
		b.WriteString("@")
		b.WriteString(s.Endpoint)
	}
	if s.Kind == KindRepair {
		b.WriteString(" powerSource=")
		b.WriteString(s.PowerSource)
	}
	return b.String()
}

// Bind returns a bind step.
func Bind(endpoint, cluster string) Step {
	return Step{Kind: KindBind, Endpoint: endpoint, Cluster: cluster}
}

// Report returns a reporting configuration step.
func Report(endpoint, cluster string, items ...converter.Reporting) Step {
	return Step{Kind: KindReport, Endpoint: endpoint, Cluster: cluster, Reporting: items}
}

// BindAndReport returns a bind step followed by its reporting step.
func BindAndReport(endpoint, cluster string, items ...converter.Reporting) []Step {
	return []Step{Bind(endpoint, cluster), Report(endpoint, cluster, items...)}
}

// Write returns a configuration write step.
func Write(endpoint, cluster string, values map[string]any) Step {
	return Step{Kind: KindWrite, Endpoint: endpoint, Cluster: cluster, Values: values}
}

// Read returns a priming read step.
func Read(endpoint, cluster string, attrs ...string) Step {
	return Step{Kind: KindRead, Endpoint: endpoint, Cluster: cluster, Attributes: attrs}
}

// RepairPowerSource returns a metadata repair step.
func RepairPowerSource(ps string) Step {
	return Step{Kind: KindRepair, PowerSource: ps}
}

// WithOptions returns a copy of s with the given options.
func (s Step) WithOptions(opts converter.Options) Step {
	s.Options = opts
	return s
}
