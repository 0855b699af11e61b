// Package exposes models capability metadata: self-describing entries that
// tell downstream consumers which semantic keys a device has, how they may be
// accessed and what values they take.
package exposes

import (
	"fmt"
	"strings"
)

// Access bits.
const (
	AccessState uint8 = 1 << iota // value is published in state
	AccessSet                     // value can be set
	AccessGet                     // value can be read on demand

	AccessStateSet = AccessState | AccessSet
	AccessStateGet = AccessState | AccessGet
	AccessAll      = AccessState | AccessSet | AccessGet
)

// Expose types.
const (
	TypeBinary    = "binary"
	TypeNumeric   = "numeric"
	TypeEnum      = "enum"
	TypeText      = "text"
	TypeComposite = "composite"
	TypeSwitch    = "switch"
	TypeLight     = "light"
)

// Categories.
const (
	CategoryConfig     = "config"
	CategoryDiagnostic = "diagnostic"
)

// Expose is one capability metadata entry. Switch, light and composite
// entries carry their members in Features.
type Expose struct {
	Type        string    `json:"type"`
	Name        string    `json:"name,omitempty"`
	Label       string    `json:"label,omitempty"`
	Property    string    `json:"property,omitempty"`
	Access      uint8     `json:"access,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	ValueMin    *float64  `json:"value_min,omitempty"`
	ValueMax    *float64  `json:"value_max,omitempty"`
	ValueStep   *float64  `json:"value_step,omitempty"`
	Values      []string  `json:"values,omitempty"`
	ValueOn     any       `json:"value_on,omitempty"`
	ValueOff    any       `json:"value_off,omitempty"`
	ValueToggle any       `json:"value_toggle,omitempty"`
	Features    []*Expose `json:"features,omitempty"`
}

func newExpose(typ, name string, access uint8) *Expose {
	return &Expose{
		Type:     typ,
		Name:     name,
		Label:    labelFromName(name),
		Property: name,
		Access:   access,
	}
}

// NewBinary creates a binary expose with the given on/off values.
func NewBinary(name string, access uint8, valueOn, valueOff any) *Expose {
	e := newExpose(TypeBinary, name, access)
	e.ValueOn, e.ValueOff = valueOn, valueOff
	return e
}

// NewNumeric creates a numeric expose.
func NewNumeric(name string, access uint8) *Expose {
	return newExpose(TypeNumeric, name, access)
}

// NewEnum creates an enum expose.
func NewEnum(name string, access uint8, values []string) *Expose {
	e := newExpose(TypeEnum, name, access)
	e.Values = append([]string(nil), values...)
	return e
}

// NewText creates a text expose.
func NewText(name string, access uint8) *Expose {
	return newExpose(TypeText, name, access)
}

// NewComposite creates a record-valued expose. Its features describe the
// record fields and are not published as separate state keys.
func NewComposite(name, property string, access uint8) *Expose {
	e := newExpose(TypeComposite, name, access)
	e.Property = property
	e.Features = []*Expose{}
	return e
}

// WithEndpoint scopes the expose to a named endpoint. The property and every
// feature property are suffixed with "_<endpoint>".
func (e *Expose) WithEndpoint(endpoint string) *Expose {
	e.Endpoint = endpoint
	if e.Property != "" {
		e.Property = e.Property + "_" + endpoint
	}
	for _, f := range e.Features {
		if e.Type == TypeComposite {
			continue
		}
		f.WithEndpoint(endpoint)
	}
	return e
}

func (e *Expose) WithUnit(unit string) *Expose {
	e.Unit = unit
	return e
}

func (e *Expose) WithDescription(d string) *Expose {
	e.Description = d
	return e
}

func (e *Expose) WithLabel(l string) *Expose {
	e.Label = l
	return e
}

func (e *Expose) WithProperty(p string) *Expose {
	e.Property = p
	return e
}

func (e *Expose) WithCategory(c string) *Expose {
	e.Category = c
	return e
}

func (e *Expose) WithValueMin(v float64) *Expose {
	e.ValueMin = &v
	return e
}

func (e *Expose) WithValueMax(v float64) *Expose {
	e.ValueMax = &v
	return e
}

func (e *Expose) WithValueStep(v float64) *Expose {
	e.ValueStep = &v
	return e
}

func (e *Expose) WithValueToggle(v any) *Expose {
	e.ValueToggle = v
	return e
}

// WithFeature appends a member. Members added after WithEndpoint inherit the
// endpoint scope.
func (e *Expose) WithFeature(f *Expose) *Expose {
	if e.Endpoint != "" && f.Endpoint == "" && e.Type != TypeComposite {
		f.WithEndpoint(e.Endpoint)
	}
	e.Features = append(e.Features, f)
	return e
}

// Validate checks that category and access agree.
func (e *Expose) Validate() error {
	switch e.Category {
	case CategoryConfig:
		if e.Access&AccessSet == 0 {
			return fmt.Errorf("exposes: config expose %q must be settable", e.Name)
		}
	case CategoryDiagnostic:
		if e.Access&AccessSet != 0 {
			return fmt.Errorf("exposes: diagnostic expose %q must not be settable", e.Name)
		}
	}
	for _, f := range e.Features {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Properties returns every published state key of the expose: the property
// itself, or for switch and light containers, their feature properties.
func (e *Expose) Properties() []string {
	if e.Type == TypeSwitch || e.Type == TypeLight {
		var out []string
		for _, f := range e.Features {
			out = append(out, f.Properties()...)
		}
		return out
	}
	if e.Property == "" {
		return nil
	}
	return []string{e.Property}
}

// Clone returns a deep copy.
func (e *Expose) Clone() *Expose {
	cp := *e
	cp.Values = append([]string(nil), e.Values...)
	if e.Features != nil {
		cp.Features = make([]*Expose, len(e.Features))
		for i, f := range e.Features {
			cp.Features[i] = f.Clone()
		}
	}
	return &cp
}

func labelFromName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		switch w {
		case "co2", "voc", "pm25", "ota":
			words[i] = strings.ToUpper(w)
			continue
		}
		if i == 0 && w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
