package definition

import (
	"errors"
	"fmt"
)

// ErrNoMatch is returned when no definition matches a device.
var ErrNoMatch = errors.New("definition: no definition matches device")

// DuplicateCapabilityOwnershipError reports two capability entries claiming
// the same state key. Kind is "expose" or "outbound".
type DuplicateCapabilityOwnershipError struct {
	Kind     string
	Key      string
	Endpoint string
}

func (e *DuplicateCapabilityOwnershipError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("definition: duplicate %s for key %q on endpoint %q", e.Kind, e.Key, e.Endpoint)
	}
	return fmt.Sprintf("definition: duplicate %s for key %q", e.Kind, e.Key)
}

// UnknownEndpointError reports a logical endpoint name that is missing from
// the definition's endpoint map.
type UnknownEndpointError struct {
	Model    string
	Endpoint string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("definition %s: endpoint %q is not in the endpoint map", e.Model, e.Endpoint)
}
