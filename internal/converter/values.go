package converter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ToFloat converts a decoded attribute or user supplied value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Round rounds v to the given number of decimal places.
func Round(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

// EndpointKey suffixes key with the endpoint name unless it is the default.
func EndpointKey(key, endpoint string) string {
	if endpoint == "" || endpoint == DefaultEndpoint {
		return key
	}
	return key + "_" + endpoint
}

// LookupKey returns the name for value in lookup.
func LookupKey(lookup map[string]int, value any) (string, bool) {
	f, ok := ToFloat(value)
	if !ok {
		return "", false
	}
	for name, v := range lookup {
		if float64(v) == f {
			return name, true
		}
	}
	return "", false
}

// LookupValue returns the wire value for name in lookup.
func LookupValue(key string, lookup map[string]int, value any) (int, error) {
	s, ok := value.(string)
	if !ok {
		return 0, &ValueDomainError{Key: key, Value: value, Reason: "expected string"}
	}
	v, ok := lookup[s]
	if !ok {
		return 0, &ValueDomainError{Key: key, Value: value, Reason: fmt.Sprintf("not one of %v", SortedKeys(lookup))}
	}
	return v, nil
}

// SortedKeys returns the lookup names ordered by wire value.
func SortedKeys(lookup map[string]int) []string {
	keys := make([]string, 0, len(lookup))
	for k := range lookup {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if lookup[keys[i]] != lookup[keys[j]] {
			return lookup[keys[i]] < lookup[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Calibrate applies the "<key>_calibration" and "<key>_precision" options
// to a measured value. Calibration is an offset, except for zero based
// quantities (power, energy, current, voltage, illuminance) where it is a
// percentage of the value. precision is used when no option is set; a
// negative precision leaves the value unrounded.
func Calibrate(opts map[string]any, key string, v float64, precision int) float64 {
	if c, ok := ToFloat(opts[key+"_calibration"]); ok {
		if percentual(key) {
			c = v * c / 100
		}
		v += c
	}
	if p, ok := ToFloat(opts[key+"_precision"]); ok && p >= 0 {
		precision = int(p)
	}
	if precision < 0 {
		return v
	}
	return Round(v, precision)
}

func percentual(key string) bool {
	for _, p := range []string{"current", "energy", "voltage", "power", "illuminance"} {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
