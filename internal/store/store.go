package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Device operations
	SaveDevice(dev *Device) error
	GetDevice(ieee string) (*Device, error)
	DeleteDevice(ieee string) error
	ListDevices() ([]*Device, error)

	// UpdateDevice atomically reads, modifies, and saves a device in a single
	// transaction. Returns ErrNotFound if the device does not exist.
	UpdateDevice(ieee string, fn func(dev *Device) error) error

	// MergeState applies a patch to the device's last known state and
	// returns the result.
	MergeState(ieee string, patch map[string]any) (map[string]any, error)
	// GetState returns the last known state, empty when none was saved.
	GetState(ieee string) (map[string]any, error)

	Close() error
}
