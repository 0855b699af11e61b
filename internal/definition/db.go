package definition

import (
	"fmt"
	"sync"
)

// DB holds assembled definitions and finds the one matching a device.
type DB struct {
	mu      sync.RWMutex
	defs    []*Definition
	byModel map[string]*Definition // zigbee model id -> definition
}

// NewDB creates an empty definition database.
func NewDB() *DB {
	return &DB{byModel: make(map[string]*Definition)}
}

// Add inserts a definition. A zigbee model id already claimed by another
// definition is an error and the definition is not added.
func (db *DB) Add(def *Definition) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	models := append([]string(nil), def.ZigbeeModels...)
	for _, wl := range def.WhiteLabels {
		models = append(models, wl.ZigbeeModels...)
	}
	for _, m := range models {
		if other, ok := db.byModel[m]; ok && other != def {
			return fmt.Errorf("definition %s: zigbee model %q already defined by %s", def.Model, m, other.Model)
		}
	}
	for _, m := range models {
		db.byModel[m] = def
	}
	db.defs = append(db.defs, def)
	return nil
}

// Find returns the definition for a device. Fingerprints are tried first,
// the highest priority winning and insertion order breaking ties; an exact
// zigbee model match is the fallback. A generic definition claiming a
// model id therefore never hides a fingerprinted variant of it.
func (db *DB) Find(info DeviceInfo) (*Definition, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var (
		best     *Definition
		bestPrio int
	)
	for _, def := range db.defs {
		for _, fp := range def.Fingerprints {
			if !fp.Matches(info) {
				continue
			}
			if best == nil || fp.Priority > bestPrio {
				best, bestPrio = def, fp.Priority
			}
		}
	}
	if best != nil {
		return best, nil
	}
	if def, ok := db.byModel[info.ModelID]; ok && info.ModelID != "" {
		return def, nil
	}
	return nil, fmt.Errorf("%w: model %q manufacturer %q", ErrNoMatch, info.ModelID, info.ManufacturerName)
}

// ByModel looks up a definition by its model name or the model name of one
// of its white labels.
func (db *DB) ByModel(model string) *Definition {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, def := range db.defs {
		if def.Model == model {
			return def
		}
	}
	for _, def := range db.defs {
		for _, wl := range def.WhiteLabels {
			if wl.Model == model {
				return def
			}
		}
	}
	return nil
}

// All returns the definitions in insertion order.
func (db *DB) All() []*Definition {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]*Definition(nil), db.defs...)
}

// Len returns the number of definitions.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.defs)
}
