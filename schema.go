package sieve

import (
	"fmt"
	"strings"
)

// Schema describes the top-level attributes of the map objects matched with a
// SchemaAdapter.
type Schema struct {
	// Identifier for the schema. Useful for the hosting application; not used by sieve internally.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// User-friendly name for the schema
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// List of attributes supported by this schema
	Elements []DataElement `json:"elements,omitempty" yaml:"elements,omitempty"`
}

func (s *Schema) String() string {
	x := strings.Builder{}
	x.WriteString(s.ID)
	if s.Name != "" {
		x.WriteString("  '" + s.Name + "'")
	}
	x.WriteString("\n")
	for _, e := range s.Elements {
		x.WriteString(e.String())
		x.WriteString("\n")
	}
	return x.String()
}

// DataElement defines a named attribute in a schema
type DataElement struct {
	// Name of the attribute, as it appears as a key in the matched maps
	// and as the first segment of attribute paths.
	Name string `json:"name" yaml:"name"`

	// One of the Type implementations defined in this package.
	Type Type `json:"type" yaml:"type"`

	// Optional description of the attribute.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func (e *DataElement) String() string {
	return fmt.Sprintf("  %s (%s)", e.Name, e.Type)
}

// Type is the metadata a SchemaAdapter attaches to attribute nodes.
type Type interface {
	// Implements the stringer interface
	String() string
}

// String is a string attribute.
type String struct{}

// Int is an integer attribute of any Go integer type.
type Int struct{}

// Float is a floating point attribute.
type Float struct{}

// Any is an attribute of unspecified type. Values are compared dynamically.
type Any struct{}

// Bool is a true/false attribute.
type Bool struct{}

// Duration is a time.Duration attribute.
type Duration struct{}

// Timestamp is a time.Time attribute.
type Timestamp struct{}

// List is a multi-valued attribute. Each element is matched individually.
type List struct {
	ValueType Type // the type of element stored in the list
}

// Map is a nested attribute; its keys are the child attributes.
type Map struct {
	KeyType   Type // the type of the map key
	ValueType Type // the type of the value stored in the map
}

func (Int) String() string       { return "int" }
func (Bool) String() string      { return "bool" }
func (String) String() string    { return "string" }
func (Any) String() string       { return "any" }
func (Duration) String() string  { return "duration" }
func (Timestamp) String() string { return "timestamp" }
func (Float) String() string     { return "float" }
func (t List) String() string    { return fmt.Sprintf("[]%v", t.ValueType) }
func (t Map) String() string     { return fmt.Sprintf("map[%s]%s", t.KeyType, t.ValueType) }

// ParseType parses a string that represents a type and returns the type.
// The primitive types are their lower-case names (string, int, duration, etc.)
// Maps and lists look like Go maps and slices: map[string]float and []string.
func ParseType(t string) (Type, error) {
	t = strings.TrimSpace(t)

	if strings.HasPrefix(t, "map") {
		return parseMap(t)
	}

	if strings.HasPrefix(t, "[]") {
		return parseList(t)
	}

	switch t {
	case "string":
		return String{}, nil
	case "int":
		return Int{}, nil
	case "float":
		return Float{}, nil
	case "bool":
		return Bool{}, nil
	case "duration":
		return Duration{}, nil
	case "timestamp":
		return Timestamp{}, nil
	case "any":
		return Any{}, nil
	default:
		return Any{}, fmt.Errorf("unrecognized type: %s", t)
	}
}

// parseMap parses a string and returns a map type.
// The string must in the format map[<keytype>]<valuetype>.
// Example: map[string]int
func parseMap(t string) (Type, error) {
	open := strings.Index(t, "[")
	closing := strings.Index(t, "]")
	if open != len("map") || closing < open {
		return Any{}, fmt.Errorf("bad map specification: %s", t)
	}

	keyType, err := ParseType(t[open+1 : closing])
	if err != nil {
		return Any{}, err
	}

	valueType, err := ParseType(t[closing+1:])
	if err != nil {
		return Any{}, err
	}

	return Map{
		KeyType:   keyType,
		ValueType: valueType,
	}, nil
}

// parseList parses a string and returns a list type.
// The string must be in the format []<valuetype>
// Example: []string
func parseList(t string) (Type, error) {
	valueType, err := ParseType(strings.TrimPrefix(t, "[]"))
	if err != nil {
		return Any{}, err
	}

	return List{
		ValueType: valueType,
	}, nil
}
