// Package definition assembles capability bundles into device definitions
// and routes runtime traffic through them.
package definition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/exposes"
	"zigbee-capability/internal/extend"
	"zigbee-capability/internal/zcl"
)

// LinkQualityKey is added to every non-empty inbound patch.
const LinkQualityKey = "linkquality"

// Spec is an unassembled device definition.
type Spec struct {
	Identity
	Endpoints converter.EndpointMap
	Bundles   []extend.Bundle

	// Entries supplied directly, merged after the bundles.
	Exposes   []*exposes.Expose
	Inbound   []converter.Inbound
	Outbound  []converter.Outbound
	Configure []commission.Step

	Options map[string]any
}

// Definition is an assembled, immutable device definition.
type Definition struct {
	Identity
	Endpoints converter.EndpointMap
	Exposes   []*exposes.Expose
	Inbound   []converter.Inbound
	Outbound  []converter.Outbound
	Configure []commission.Step
	OTA       bool
	Options   map[string]any
	// Generated is set on definitions built by Generate.
	Generated bool
	// Warnings lists capability entries that assembled but look
	// inconsistent, such as a settable expose without an outbound owner.
	Warnings []string

	dispatch map[dispatchKey][]int
	owners   map[string]int
	logger   *slog.Logger
}

type dispatchKey struct {
	cluster string
	typ     string
}

// Assemble merges the spec's bundles and direct entries, checks every
// cluster reference against the frozen registry and every endpoint name
// against the endpoint map, and builds the dispatch tables.
func Assemble(spec Spec, snap *zcl.Snapshot, logger *slog.Logger) (*Definition, error) {
	direct := extend.Bundle{
		Exposes:   spec.Exposes,
		Inbound:   spec.Inbound,
		Outbound:  spec.Outbound,
		Configure: spec.Configure,
	}
	merged, err := Merge(append(append([]extend.Bundle(nil), spec.Bundles...), direct)...)
	if err != nil {
		return nil, fmt.Errorf("definition %s: %w", spec.Model, err)
	}

	d := &Definition{
		Identity:  spec.Identity,
		Endpoints: spec.Endpoints,
		Exposes:   merged.Exposes,
		Inbound:   merged.Inbound,
		Outbound:  merged.Outbound,
		Configure: merged.Configure,
		OTA:       merged.OTA,
		Options:   spec.Options,
		dispatch:  make(map[dispatchKey][]int),
		owners:    make(map[string]int),
		logger:    logger.With("component", "definition", "model", spec.Model),
	}
	if d.Endpoints == nil {
		d.Endpoints = converter.EndpointMap{}
	}

	if err := d.checkRefs(snap, merged.Refs); err != nil {
		return nil, fmt.Errorf("definition %s: %w", spec.Model, err)
	}
	if err := d.checkEndpoints(); err != nil {
		return nil, err
	}

	var errs []error
	for _, e := range d.Exposes {
		if err := e.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("definition %s: %w", spec.Model, err)
	}

	if !d.exposes(LinkQualityKey) {
		d.Exposes = append(d.Exposes, exposes.LinkQuality())
	}

	for i, c := range d.Inbound {
		for _, t := range c.Types {
			k := dispatchKey{c.Cluster, t}
			d.dispatch[k] = append(d.dispatch[k], i)
		}
	}
	for i, o := range d.Outbound {
		for _, key := range o.Keys {
			d.owners[key] = i
		}
	}
	d.flagAmbiguous()
	for _, o := range rawOutbound(snap) {
		if _, ok := d.owners[o.Keys[0]]; ok {
			continue
		}
		d.owners[o.Keys[0]] = len(d.Outbound)
		d.Outbound = append(d.Outbound, o)
	}
	return d, nil
}

func (d *Definition) checkRefs(snap *zcl.Snapshot, refs []extend.Ref) error {
	var errs []error
	seen := make(map[extend.Ref]bool)
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		var err error
		if r.Command {
			_, err = snap.ResolveCommand(r.Cluster, r.Member)
		} else {
			_, err = snap.ResolveAttribute(r.Cluster, r.Member)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	clusters := make(map[string]bool)
	for _, c := range d.Inbound {
		clusters[c.Cluster] = true
	}
	for _, s := range d.Configure {
		if s.Cluster != "" {
			clusters[s.Cluster] = true
		}
	}
	for _, name := range sortedSet(clusters) {
		if _, err := snap.Cluster(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Definition) checkEndpoints() error {
	used := make(map[string]bool)
	for _, e := range d.Exposes {
		used[e.Endpoint] = true
	}
	for _, c := range d.Inbound {
		used[c.Endpoint] = true
	}
	for _, o := range d.Outbound {
		used[o.Endpoint] = true
	}
	for _, s := range d.Configure {
		used[s.Endpoint] = true
	}
	for _, name := range sortedSet(used) {
		if name == "" || name == converter.DefaultEndpoint {
			continue
		}
		if _, ok := d.Endpoints[name]; !ok {
			return &UnknownEndpointError{Model: d.Model, Endpoint: name}
		}
	}
	return nil
}

// flagAmbiguous records settable exposes nobody can set and outbound keys
// nobody advertises.
func (d *Definition) flagAmbiguous() {
	settable := make(map[string]bool)
	advertised := make(map[string]bool)
	var walk func(e *exposes.Expose)
	walk = func(e *exposes.Expose) {
		if e.Type == exposes.TypeSwitch || e.Type == exposes.TypeLight {
			for _, f := range e.Features {
				walk(f)
			}
			return
		}
		advertised[e.Property] = true
		if e.Access&exposes.AccessSet != 0 {
			settable[e.Property] = true
		}
	}
	for _, e := range d.Exposes {
		walk(e)
	}
	for _, key := range sortedSet(settable) {
		if _, ok := d.owners[key]; !ok {
			d.warn(fmt.Sprintf("expose %q is settable but no outbound converter owns it", key))
		}
	}
	for _, o := range d.Outbound {
		for _, key := range o.Keys {
			if !advertised[key] {
				d.warn(fmt.Sprintf("outbound key %q has no expose", key))
			}
		}
	}
}

func (d *Definition) warn(msg string) {
	d.Warnings = append(d.Warnings, msg)
	d.logger.Warn("ambiguous capability", "detail", msg)
}

func (d *Definition) exposes(key string) bool {
	for _, e := range d.Exposes {
		for _, p := range e.Properties() {
			if p == key {
				return true
			}
		}
	}
	return false
}

func (d *Definition) meta(dev converter.Device, state converter.State) *converter.Meta {
	opts := d.Options
	if dev != nil {
		if own := dev.Options(); len(own) > 0 {
			opts = make(map[string]any, len(d.Options)+len(own))
			for k, v := range d.Options {
				opts[k] = v
			}
			for k, v := range own {
				opts[k] = v
			}
		}
	}
	return &converter.Meta{
		Device:    dev,
		State:     state,
		Endpoints: d.Endpoints,
		Options:   opts,
		Logger:    d.logger,
	}
}

// Convert runs every inbound converter matching the message and merges their
// patches in declaration order, later converters winning. A converter that
// fails or panics contributes nothing; the others still run and their
// errors are returned joined alongside the merged patch.
func (d *Definition) Convert(msg *converter.Message, dev converter.Device, state converter.State) (converter.State, error) {
	idxs := d.dispatch[dispatchKey{msg.Cluster, msg.Type}]
	if len(idxs) == 0 {
		return nil, nil
	}
	meta := d.meta(dev, state)

	out := make(converter.State)
	var errs []error
	for _, i := range idxs {
		c := &d.Inbound[i]
		if !meta.FromEndpoint(msg, c.Endpoint) {
			continue
		}
		patch, err := runInbound(c, msg, meta)
		if err != nil {
			d.logger.Warn("converter failed", "cluster", msg.Cluster, "type", msg.Type,
				"ieee", ieeeOf(dev), "err", err)
			errs = append(errs, fmt.Errorf("%s/%s: %w", msg.Cluster, msg.Type, err))
			continue
		}
		out.Merge(patch)
	}
	if len(out) == 0 {
		return nil, errors.Join(errs...)
	}
	if _, ok := out[LinkQualityKey]; !ok {
		out[LinkQualityKey] = int(msg.LinkQuality)
	}
	return out, errors.Join(errs...)
}

func runInbound(c *converter.Inbound, msg *converter.Message, meta *converter.Meta) (patch converter.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			patch, err = nil, fmt.Errorf("converter panic: %v", r)
		}
	}()
	return c.Convert(msg, meta)
}

func ieeeOf(dev converter.Device) string {
	if dev == nil {
		return ""
	}
	return dev.IEEEAddress()
}

// Owner returns the outbound converter that owns key.
func (d *Definition) Owner(key string) (converter.Outbound, bool) {
	i, ok := d.owners[key]
	if !ok {
		return converter.Outbound{}, false
	}
	return d.Outbound[i], true
}

// Set routes a set request to the key's owner and returns its optimistic
// patch.
func (d *Definition) Set(ctx context.Context, dev converter.Device, state converter.State, key string, value any) (converter.State, error) {
	o, ok := d.Owner(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", converter.ErrUnsupportedKey, key)
	}
	if o.Set == nil {
		return nil, fmt.Errorf("%w: %q", converter.ErrReadOnly, key)
	}
	ep, err := converter.ResolveEndpoint(dev, d.Endpoints, o.Endpoint)
	if err != nil {
		return nil, err
	}
	return o.Set(ctx, ep, key, value, d.meta(dev, state))
}

// Get routes a get request to the key's owner. The value arrives later as
// an inbound read response.
func (d *Definition) Get(ctx context.Context, dev converter.Device, state converter.State, key string) error {
	o, ok := d.Owner(key)
	if !ok {
		return fmt.Errorf("%w: %q", converter.ErrUnsupportedKey, key)
	}
	if o.Get == nil {
		return fmt.Errorf("%w: %q", converter.ErrNoGet, key)
	}
	ep, err := converter.ResolveEndpoint(dev, d.Endpoints, o.Endpoint)
	if err != nil {
		return err
	}
	return o.Get(ctx, ep, key, d.meta(dev, state))
}

// Keys returns every key an outbound converter owns, sorted.
func (d *Definition) Keys() []string {
	keys := make([]string, 0, len(d.owners))
	for k := range d.owners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clusters returns the (cluster, message type) pairs the definition
// listens to, sorted.
func (d *Definition) Clusters() [][2]string {
	out := make([][2]string, 0, len(d.dispatch))
	for k := range d.dispatch {
		out = append(out, [2]string{k.cluster, k.typ})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
