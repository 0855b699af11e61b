package zcl

import (
	"errors"
	"fmt"
)

// ErrRegistryFrozen is returned when registering after Freeze.
var ErrRegistryFrozen = errors.New("zcl: registry is frozen")

// DuplicateClusterError reports a cluster registered twice under the same
// name and manufacturer code with a different layout.
type DuplicateClusterError struct {
	Name             string
	ManufacturerCode uint16
	Reason           string
}

func (e *DuplicateClusterError) Error() string {
	if e.ManufacturerCode != NoManufacturer {
		return fmt.Sprintf("zcl: conflicting definition for cluster %s (manufacturer 0x%04X): %s", e.Name, e.ManufacturerCode, e.Reason)
	}
	return fmt.Sprintf("zcl: conflicting definition for cluster %s: %s", e.Name, e.Reason)
}

// UnknownClusterMemberError reports a reference to a cluster, attribute or
// command that is not in the registry.
type UnknownClusterMemberError struct {
	Cluster string
	Member  string // empty when the cluster itself is unknown
	Kind    string // "cluster", "attribute" or "command"
}

func (e *UnknownClusterMemberError) Error() string {
	if e.Kind == "cluster" {
		return fmt.Sprintf("zcl: unknown cluster %q", e.Cluster)
	}
	return fmt.Sprintf("zcl: unknown %s %q in cluster %q", e.Kind, e.Member, e.Cluster)
}

// ValueError reports a Go value that cannot be encoded as a ZCL type. It is
// returned before anything is sent.
type ValueError struct {
	Type   string
	Value  any
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("zcl: %v is not a valid %s: %s", e.Value, e.Type, e.Reason)
}
