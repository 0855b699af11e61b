package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDevices = []byte("devices")
	bucketState   = []byte("state")
)

// BoltStore implements Store using BoltDB. Device metadata and device state
// live in separate buckets so frequent state writes do not rewrite the
// metadata record.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDevices, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("bucket %q not found", name)
	}
	return b, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func (s *BoltStore) SaveDevice(dev *Device) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		return putJSON(b, dev.IEEEAddress, dev)
	})
}

func getDevice(tx *bolt.Tx, ieee string) (*Device, error) {
	b, err := bucket(tx, bucketDevices)
	if err != nil {
		return nil, err
	}
	data := b.Get([]byte(ieee))
	if data == nil {
		return nil, fmt.Errorf("device %s: %w", ieee, ErrNotFound)
	}
	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return nil, fmt.Errorf("device %s: %w", ieee, err)
	}
	return &dev, nil
}

func (s *BoltStore) GetDevice(ieee string) (*Device, error) {
	var dev *Device
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		dev, err = getDevice(tx, ieee)
		return err
	})
	return dev, err
}

func (s *BoltStore) UpdateDevice(ieee string, fn func(dev *Device) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		dev, err := getDevice(tx, ieee)
		if err != nil {
			return err
		}
		if err := fn(dev); err != nil {
			return err
		}
		dev.IEEEAddress = ieee
		return putJSON(tx.Bucket(bucketDevices), ieee, dev)
	})
}

func (s *BoltStore) DeleteDevice(ieee string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDevices, bucketState} {
			b, err := bucket(tx, name)
			if err != nil {
				return err
			}
			if err := b.Delete([]byte(ieee)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ListDevices() ([]*Device, error) {
	var devices []*Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return nil // no bucket = no devices
		}
		devices = make([]*Device, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var dev Device
			if err := json.Unmarshal(v, &dev); err != nil {
				return fmt.Errorf("device %s: %w", k, err)
			}
			devices = append(devices, &dev)
			return nil
		})
	})
	return devices, err
}

func getState(tx *bolt.Tx, ieee string) (map[string]any, error) {
	b, err := bucket(tx, bucketState)
	if err != nil {
		return nil, err
	}
	state := make(map[string]any)
	if data := b.Get([]byte(ieee)); data != nil {
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("state %s: %w", ieee, err)
		}
	}
	return state, nil
}

func (s *BoltStore) MergeState(ieee string, patch map[string]any) (map[string]any, error) {
	var state map[string]any
	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := getDevice(tx, ieee); err != nil {
			return err
		}
		var err error
		if state, err = getState(tx, ieee); err != nil {
			return err
		}
		for k, v := range patch {
			state[k] = v
		}
		return putJSON(tx.Bucket(bucketState), ieee, state)
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *BoltStore) GetState(ieee string) (map[string]any, error) {
	var state map[string]any
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		state, err = getState(tx, ieee)
		return err
	})
	return state, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
