package zcl

// Access flags
const (
	AccessRead   uint8 = 0x01
	AccessWrite  uint8 = 0x02
	AccessReport uint8 = 0x04
)

// NoManufacturer marks a cluster or member that is not vendor specific.
const NoManufacturer uint16 = 0

// AttributeDef defines a ZCL attribute.
type AttributeDef struct {
	ID     uint16 `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Type   uint8  `json:"type" yaml:"type"`
	Access uint8  `json:"access" yaml:"access"` // bitmask: 1=read, 2=write, 4=reportable
}

// IsReadable returns true if the attribute can be read.
func (a *AttributeDef) IsReadable() bool {
	return a.Access&AccessRead != 0
}

// IsWritable returns true if the attribute can be written.
func (a *AttributeDef) IsWritable() bool {
	return a.Access&AccessWrite != 0
}

// IsReportable returns true if the attribute supports reporting.
func (a *AttributeDef) IsReportable() bool {
	return a.Access&AccessReport != 0
}

// CommandDirection indicates the direction of a cluster command.
type CommandDirection string

const (
	DirectionToServer CommandDirection = "toServer"
	DirectionToClient CommandDirection = "toClient"
)

// ParamDef is one positional command parameter.
type ParamDef struct {
	Name string `json:"name" yaml:"name"`
	Type uint8  `json:"type" yaml:"type"`
}

// CommandDef defines a cluster-specific command. Commands sent to the device
// use DirectionToServer; command responses and notifications the device sends
// back use DirectionToClient.
type CommandDef struct {
	ID        uint8            `json:"id" yaml:"id"`
	Name      string           `json:"name" yaml:"name"`
	Direction CommandDirection `json:"direction" yaml:"direction"`
	Params    []ParamDef       `json:"params,omitempty" yaml:"params,omitempty"`
}

// ClusterDef defines a ZCL cluster with its attributes and commands.
// ManufacturerCode is zero for standard clusters.
type ClusterDef struct {
	ID               uint16         `json:"id" yaml:"id"`
	Name             string         `json:"name" yaml:"name"`
	ManufacturerCode uint16         `json:"manufacturer_code,omitempty" yaml:"manufacturer_code,omitempty"`
	Attributes       []AttributeDef `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Commands         []CommandDef   `json:"commands,omitempty" yaml:"commands,omitempty"`
}

// FindAttribute looks up an attribute by ID.
func (c *ClusterDef) FindAttribute(id uint16) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].ID == id {
			return &c.Attributes[i]
		}
	}
	return nil
}

// AttributeByName looks up an attribute by name.
func (c *ClusterDef) AttributeByName(name string) *AttributeDef {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			return &c.Attributes[i]
		}
	}
	return nil
}

// FindCommand looks up a command by ID and direction.
func (c *ClusterDef) FindCommand(id uint8, dir CommandDirection) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].ID == id && c.Commands[i].Direction == dir {
			return &c.Commands[i]
		}
	}
	return nil
}

// CommandByName looks up a command or command response by name.
func (c *ClusterDef) CommandByName(name string) *CommandDef {
	for i := range c.Commands {
		if c.Commands[i].Name == name {
			return &c.Commands[i]
		}
	}
	return nil
}

// DeepCopy returns a deep copy of the cluster definition.
func (c *ClusterDef) DeepCopy() *ClusterDef {
	cp := *c
	if c.Attributes != nil {
		cp.Attributes = make([]AttributeDef, len(c.Attributes))
		copy(cp.Attributes, c.Attributes)
	}
	if c.Commands != nil {
		cp.Commands = make([]CommandDef, len(c.Commands))
		for i, cmd := range c.Commands {
			cp.Commands[i] = cmd
			if cmd.Params != nil {
				cp.Commands[i].Params = append([]ParamDef(nil), cmd.Params...)
			}
		}
	}
	return &cp
}

// conflict reports the first difference in layout between two definitions
// registered under the same name and manufacturer code, or "" if they are
// identical. Member order is not significant.
func (c *ClusterDef) conflict(other *ClusterDef) string {
	if c.ID != other.ID {
		return "cluster id differs"
	}
	if len(c.Attributes) != len(other.Attributes) {
		return "attribute count differs"
	}
	for _, a := range c.Attributes {
		o := other.AttributeByName(a.Name)
		if o == nil {
			return "attribute " + a.Name + " missing"
		}
		if *o != a {
			return "attribute " + a.Name + " differs"
		}
	}
	if len(c.Commands) != len(other.Commands) {
		return "command count differs"
	}
	for _, cmd := range c.Commands {
		o := other.CommandByName(cmd.Name)
		if o == nil {
			return "command " + cmd.Name + " missing"
		}
		if o.ID != cmd.ID || o.Direction != cmd.Direction || len(o.Params) != len(cmd.Params) {
			return "command " + cmd.Name + " differs"
		}
		for i := range cmd.Params {
			if cmd.Params[i] != o.Params[i] {
				return "command " + cmd.Name + " differs"
			}
		}
	}
	return ""
}

// validate checks that member names are unique within the definition.
func (c *ClusterDef) validate() error {
	if c.Name == "" {
		return &DuplicateClusterError{Name: c.Name, ManufacturerCode: c.ManufacturerCode, Reason: "empty cluster name"}
	}
	seen := make(map[string]bool, len(c.Attributes)+len(c.Commands))
	for _, a := range c.Attributes {
		if a.Name == "" || seen["a:"+a.Name] {
			return &DuplicateClusterError{Name: c.Name, ManufacturerCode: c.ManufacturerCode, Reason: "duplicate or empty attribute name " + a.Name}
		}
		seen["a:"+a.Name] = true
	}
	for _, cmd := range c.Commands {
		if cmd.Name == "" || seen["c:"+cmd.Name] {
			return &DuplicateClusterError{Name: c.Name, ManufacturerCode: c.ManufacturerCode, Reason: "duplicate or empty command name " + cmd.Name}
		}
		seen["c:"+cmd.Name] = true
	}
	return nil
}
