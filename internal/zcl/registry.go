package zcl

import (
	"fmt"
	"sort"
	"sync"
)

type clusterKey struct {
	name string
	mfr  uint16
}

// Registry collects cluster definitions during startup. Once every
// definition is in, Freeze produces an immutable Snapshot that is safe for
// concurrent lookups without locking.
type Registry struct {
	mu       sync.RWMutex
	clusters map[clusterKey]*ClusterDef
	frozen   bool
}

// NewRegistry creates an empty cluster registry.
func NewRegistry() *Registry {
	return &Registry{
		clusters: make(map[clusterKey]*ClusterDef),
	}
}

// Register adds a cluster definition. Registering an identical definition
// twice is a no-op; a different layout under the same name and manufacturer
// code returns a *DuplicateClusterError.
func (r *Registry) Register(c ClusterDef) error {
	if err := c.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	key := clusterKey{c.Name, c.ManufacturerCode}
	if existing, ok := r.clusters[key]; ok {
		if reason := existing.conflict(&c); reason != "" {
			return &DuplicateClusterError{Name: c.Name, ManufacturerCode: c.ManufacturerCode, Reason: reason}
		}
		return nil
	}
	r.clusters[key] = c.DeepCopy()
	return nil
}

// RegisterAll registers each definition, stopping at the first error.
func (r *Registry) RegisterAll(defs []ClusterDef) error {
	for _, c := range defs {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clusters)
}

// Freeze ends registration and returns a read-only view of the registry.
// Calling Freeze again returns an equivalent snapshot.
func (r *Registry) Freeze() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true

	s := &Snapshot{
		byName: make(map[string][]*ClusterDef),
		byID:   make(map[clusterIDKey]*ClusterDef),
	}
	for _, c := range r.clusters {
		cp := c.DeepCopy()
		s.byName[cp.Name] = append(s.byName[cp.Name], cp)
		s.byID[clusterIDKey{cp.ID, cp.ManufacturerCode}] = cp
	}
	// Base definition first, then vendor variants in code order.
	for _, defs := range s.byName {
		sort.Slice(defs, func(i, j int) bool {
			return defs[i].ManufacturerCode < defs[j].ManufacturerCode
		})
	}
	return s
}

type clusterIDKey struct {
	id  uint16
	mfr uint16
}

// Snapshot is an immutable view of a frozen Registry.
type Snapshot struct {
	byName map[string][]*ClusterDef
	byID   map[clusterIDKey]*ClusterDef
}

// AttributeRef is a resolved attribute reference.
type AttributeRef struct {
	Cluster   *ClusterDef
	Attribute *AttributeDef
}

// ManufacturerCode returns the code to send with requests for this
// attribute, zero for standard attributes.
func (a AttributeRef) ManufacturerCode() uint16 { return a.Cluster.ManufacturerCode }

// CommandRef is a resolved command reference.
type CommandRef struct {
	Cluster *ClusterDef
	Command *CommandDef
}

// Cluster returns the base definition for a cluster name, falling back to
// the first vendor variant when there is no standard one.
func (s *Snapshot) Cluster(name string) (*ClusterDef, error) {
	defs := s.byName[name]
	if len(defs) == 0 {
		return nil, &UnknownClusterMemberError{Cluster: name, Kind: "cluster"}
	}
	return defs[0], nil
}

// ClusterByID looks up a definition by numeric ID and manufacturer code.
// A vendor-specific lookup falls back to the standard definition.
func (s *Snapshot) ClusterByID(id, mfr uint16) *ClusterDef {
	if c, ok := s.byID[clusterIDKey{id, mfr}]; ok {
		return c
	}
	if mfr != NoManufacturer {
		return s.byID[clusterIDKey{id, NoManufacturer}]
	}
	return nil
}

// ResolveAttribute finds an attribute by cluster and attribute name. The
// standard definition is searched before vendor variants.
func (s *Snapshot) ResolveAttribute(cluster, attribute string) (AttributeRef, error) {
	defs := s.byName[cluster]
	if len(defs) == 0 {
		return AttributeRef{}, &UnknownClusterMemberError{Cluster: cluster, Kind: "cluster"}
	}
	for _, c := range defs {
		if a := c.AttributeByName(attribute); a != nil {
			return AttributeRef{Cluster: c, Attribute: a}, nil
		}
	}
	return AttributeRef{}, &UnknownClusterMemberError{Cluster: cluster, Member: attribute, Kind: "attribute"}
}

// ResolveCommand finds a command by cluster and command name.
func (s *Snapshot) ResolveCommand(cluster, command string) (CommandRef, error) {
	defs := s.byName[cluster]
	if len(defs) == 0 {
		return CommandRef{}, &UnknownClusterMemberError{Cluster: cluster, Kind: "cluster"}
	}
	for _, c := range defs {
		if cmd := c.CommandByName(command); cmd != nil {
			return CommandRef{Cluster: c, Command: cmd}, nil
		}
	}
	return CommandRef{}, &UnknownClusterMemberError{Cluster: cluster, Member: command, Kind: "command"}
}

// variants returns the definitions to search for a cluster received over
// the air: the exact (id, mfr) match, then the standard definition, then the
// remaining variants sharing its name.
func (s *Snapshot) variants(id, mfr uint16) []*ClusterDef {
	first := s.ClusterByID(id, mfr)
	if first == nil {
		var vendor []*ClusterDef
		for k, c := range s.byID {
			if k.id == id {
				vendor = append(vendor, c)
			}
		}
		if len(vendor) == 0 {
			return nil
		}
		sort.Slice(vendor, func(i, j int) bool {
			return vendor[i].ManufacturerCode < vendor[j].ManufacturerCode
		})
		first = vendor[0]
	}
	out := []*ClusterDef{first}
	for _, c := range s.byName[first.Name] {
		if c != first {
			out = append(out, c)
		}
	}
	return out
}

// AttributeByID resolves a received attribute by numeric IDs.
func (s *Snapshot) AttributeByID(clusterID, mfr, attrID uint16) (AttributeRef, bool) {
	for _, c := range s.variants(clusterID, mfr) {
		if a := c.FindAttribute(attrID); a != nil {
			return AttributeRef{Cluster: c, Attribute: a}, true
		}
	}
	return AttributeRef{}, false
}

// CommandByID resolves a received command by numeric IDs and direction.
func (s *Snapshot) CommandByID(clusterID, mfr uint16, cmdID uint8, dir CommandDirection) (CommandRef, bool) {
	for _, c := range s.variants(clusterID, mfr) {
		if cmd := c.FindCommand(cmdID, dir); cmd != nil {
			return CommandRef{Cluster: c, Command: cmd}, true
		}
	}
	return CommandRef{}, false
}

// ClusterName returns the registered name for a cluster ID, or the ID in
// hex when it is unknown.
func (s *Snapshot) ClusterName(id, mfr uint16) string {
	if defs := s.variants(id, mfr); len(defs) > 0 {
		return defs[0].Name
	}
	return fmt.Sprintf("0x%04X", id)
}

// Names returns all registered cluster names, sorted.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
