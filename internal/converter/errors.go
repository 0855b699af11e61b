package converter

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedKey is returned for a set or get on a key no converter owns.
	ErrUnsupportedKey = errors.New("converter: no converter owns key")
	// ErrReadOnly is returned for a set on a key without a set function.
	ErrReadOnly = errors.New("converter: key is read-only")
	// ErrNoGet is returned for a get on a key without a get function.
	ErrNoGet = errors.New("converter: key cannot be read")
	// ErrUnknownEndpoint is returned when a logical endpoint does not
	// resolve to an endpoint of the device.
	ErrUnknownEndpoint = errors.New("converter: endpoint not found on device")
)

// ValueDomainError reports a set value outside the capability's domain. No
// protocol action was issued.
type ValueDomainError struct {
	Key    string
	Value  any
	Reason string
}

func (e *ValueDomainError) Error() string {
	return fmt.Sprintf("converter: invalid value %v for %s: %s", e.Value, e.Key, e.Reason)
}

// TransportError wraps a failed protocol operation.
type TransportError struct {
	Op      string // read, write, command, bind, configureReporting
	Cluster string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("converter: %s %s: %v", e.Op, e.Cluster, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a *TransportError unless it is nil, already one,
// or a *ValueDomainError raised before anything was sent.
func Transport(op, cluster string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	var de *ValueDomainError
	if errors.As(err, &de) {
		return err
	}
	return &TransportError{Op: op, Cluster: cluster, Err: err}
}
