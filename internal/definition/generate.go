package definition

import (
	"fmt"
	"log/slog"
	"strconv"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/extend"
	"zigbee-capability/internal/zcl"
)

// GeneratedDescription is the description of definitions built by Generate.
const GeneratedDescription = "Automatically generated definition"

// greenPowerEndpoint carries Green Power proxy traffic, not device features.
const greenPowerEndpoint = 242

// generator builds bundles for the endpoints implementing one of its
// clusters. names is nil when only the device's first endpoint has them.
type generator struct {
	clusters []string
	build    func(g *generation, eps []EndpointInfo, names []string) ([]extend.Bundle, error)
}

var inputGenerators = []generator{
	{[]string{"msTemperatureMeasurement"}, sensor(extend.Temperature)},
	{[]string{"msPressureMeasurement"}, sensor(extend.Pressure)},
	{[]string{"msRelativeHumidity"}, sensor(extend.Humidity)},
	{[]string{"genPowerCfg"}, func(*generation, []EndpointInfo, []string) ([]extend.Bundle, error) {
		return one(extend.Battery(extend.BatteryConfig{}))
	}},
	{[]string{"genOnOff", "genLevelCtrl", "lightingColorCtrl"}, onOffLight},
	{[]string{"seMetering", "haElectricalMeasurement"}, meter},
	{[]string{"msIlluminanceMeasurement"}, sensor(extend.Illuminance)},
	{[]string{"msOccupancySensing"}, func(*generation, []EndpointInfo, []string) ([]extend.Bundle, error) {
		return one(extend.Occupancy(extend.SensorConfig{}))
	}},
	{[]string{"ssIasZone"}, func(*generation, []EndpointInfo, []string) ([]extend.Bundle, error) {
		return one(extend.IASZone(extend.IASZoneConfig{ZoneType: "generic"}))
	}},
}

var outputGenerators = []generator{
	{[]string{"genOnOff"}, func(_ *generation, _ []EndpointInfo, names []string) ([]extend.Bundle, error) {
		return one(extend.Action(extend.ActionConfig{
			Cluster:         "genOnOff",
			Commands:        []string{"on", "off", "toggle"},
			PostfixEndpoint: names != nil,
			Endpoints:       names,
		}))
	}},
}

func one(b extend.Bundle, err error) ([]extend.Bundle, error) {
	if err != nil {
		return nil, err
	}
	return []extend.Bundle{b}, nil
}

func sensor(build func(extend.SensorConfig) (extend.Bundle, error)) func(*generation, []EndpointInfo, []string) ([]extend.Bundle, error) {
	return func(_ *generation, _ []EndpointInfo, names []string) ([]extend.Bundle, error) {
		return one(build(extend.SensorConfig{Endpoints: names}))
	}
}

// onOffLight makes endpoints that also dim lights and the rest switches.
func onOffLight(g *generation, _ []EndpointInfo, _ []string) ([]extend.Bundle, error) {
	var lights, switches []EndpointInfo
	colour := false
	for _, ep := range g.eps {
		if !contains(ep.InputClusters, "genOnOff") {
			continue
		}
		if contains(ep.InputClusters, "genLevelCtrl") || contains(ep.InputClusters, "lightingColorCtrl") {
			lights = append(lights, ep)
			colour = colour || contains(ep.InputClusters, "lightingColorCtrl")
			continue
		}
		switches = append(switches, ep)
	}
	var out []extend.Bundle
	if len(switches) > 0 {
		b, err := extend.OnOff(extend.OnOffConfig{Endpoints: g.names(switches), PowerOnBehavior: ptr(false)})
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if len(lights) > 0 {
		c := extend.LightConfig{Endpoints: g.names(lights), PowerOnBehavior: ptr(false)}
		if colour {
			c.ColorTempRange = []float64{150, 500}
		}
		b, err := extend.Light(c)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// meter keeps the standard fields whose cluster the device implements.
func meter(g *generation, _ []EndpointInfo, _ []string) ([]extend.Bundle, error) {
	var eps []EndpointInfo
	present := make(map[string]bool)
	for _, ep := range g.eps {
		found := false
		for _, c := range []string{"seMetering", "haElectricalMeasurement"} {
			if contains(ep.InputClusters, c) {
				present[c] = true
				found = true
			}
		}
		if found {
			eps = append(eps, ep)
		}
	}
	var exclude []string
	for _, f := range extend.StandardMeterFields() {
		if !present[f.Cluster] {
			exclude = append(exclude, f.Key)
		}
	}
	return one(extend.Electricity(extend.ElectricityConfig{Exclude: exclude, Endpoints: g.names(eps)}))
}

func ptr[T any](v T) *T { return &v }

type generation struct {
	eps   []EndpointInfo
	first uint8
}

// names returns the endpoint names for eps, or nil when eps is only the
// device's first endpoint.
func (g *generation) names(eps []EndpointInfo) []string {
	if len(eps) == 1 && eps[0].ID == g.first {
		return nil
	}
	names := make([]string, len(eps))
	for i, ep := range eps {
		names[i] = strconv.Itoa(int(ep.ID))
	}
	return names
}

type clusterEndpoints struct {
	names []string
	eps   map[string][]EndpointInfo
}

func (ce *clusterEndpoints) add(cluster string, ep EndpointInfo) {
	if _, ok := ce.eps[cluster]; !ok {
		ce.names = append(ce.names, cluster)
	}
	ce.eps[cluster] = append(ce.eps[cluster], ep)
}

// Generate builds a definition for a device no definition matched, from
// the standard clusters its endpoints implement. Endpoints are named by
// their decimal ID when the device has more than one. A device with no
// recognised cluster fails with ErrNoMatch.
func Generate(info DeviceInfo, snap *zcl.Snapshot, logger *slog.Logger) (*Definition, error) {
	if info.ModelID == "" {
		return nil, fmt.Errorf("%w: no model id to generate a definition for", ErrNoMatch)
	}
	g := &generation{}
	for _, ep := range info.Endpoints {
		if ep.ID != greenPowerEndpoint {
			g.eps = append(g.eps, ep)
		}
	}
	if len(g.eps) == 0 {
		return nil, fmt.Errorf("%w: model %q has no endpoints", ErrNoMatch, info.ModelID)
	}
	g.first = g.eps[0].ID

	in := clusterEndpoints{eps: make(map[string][]EndpointInfo)}
	out := clusterEndpoints{eps: make(map[string][]EndpointInfo)}
	for _, ep := range g.eps {
		for _, c := range ep.InputClusters {
			in.add(c, ep)
		}
		for _, c := range ep.OutputClusters {
			out.add(c, ep)
		}
	}

	var bundles []extend.Bundle
	for _, set := range []struct {
		clusters   clusterEndpoints
		generators []generator
	}{{in, inputGenerators}, {out, outputGenerators}} {
		used := make(map[int]bool)
		for _, cluster := range set.clusters.names {
			i := findGenerator(set.generators, cluster)
			if i < 0 || used[i] {
				continue
			}
			used[i] = true
			eps := set.clusters.eps[cluster]
			bs, err := set.generators[i].build(g, eps, g.names(eps))
			if err != nil {
				return nil, fmt.Errorf("generate %s: %s: %w", info.ModelID, cluster, err)
			}
			bundles = append(bundles, bs...)
		}
	}
	if len(bundles) == 0 {
		return nil, fmt.Errorf("%w: model %q has no recognised clusters", ErrNoMatch, info.ModelID)
	}

	spec := Spec{
		Identity: Identity{
			Model:        info.ModelID,
			Vendor:       info.ManufacturerName,
			Description:  GeneratedDescription,
			ZigbeeModels: []string{info.ModelID},
		},
		Bundles: bundles,
	}
	if len(g.eps) > 1 {
		spec.Endpoints = converter.EndpointMap{}
		for _, ep := range g.eps {
			spec.Endpoints[strconv.Itoa(int(ep.ID))] = ep.ID
		}
	}
	def, err := Assemble(spec, snap, logger)
	if err != nil {
		return nil, err
	}
	def.Generated = true
	return def, nil
}

func findGenerator(gens []generator, cluster string) int {
	for i, g := range gens {
		if contains(g.clusters, cluster) {
			return i
		}
	}
	return -1
}
