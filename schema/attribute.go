package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Type is the declared type of an attribute.
type Type string

const (
	TypeString      Type = "string"
	TypeText        Type = "text"
	TypeRichText    Type = "richtext"
	TypeEmail       Type = "email"
	TypePassword    Type = "password"
	TypeUID         Type = "uid"
	TypeEnumeration Type = "enumeration"
	TypeInteger     Type = "integer"
	TypeBigInteger  Type = "biginteger"
	TypeFloat       Type = "float"
	TypeDecimal     Type = "decimal"
	TypeBoolean     Type = "boolean"
	TypeDate        Type = "date"
	TypeDateTime    Type = "datetime"
	TypeTime        Type = "time"
	TypeJSON        Type = "json"
	TypeGroup       Type = "group"
	TypeMedia       Type = "media"
	TypeRelation    Type = "relation"
)

// ErrInvalidValue is wrapped by Coerce when a value does not fit the
// attribute type.
var ErrInvalidValue = errors.New("invalid value")

// Attribute describes one field of a model.
type Attribute struct {
	Name     string `yaml:"-"`
	Type     Type   `yaml:"type"`
	Required *bool  `yaml:"required"`
	Private  bool   `yaml:"private"`
	Unique   bool   `yaml:"unique"`
	Default  any    `yaml:"default"`

	// enumeration
	Enum []string `yaml:"enum"`

	// group
	Group      string `yaml:"group"`
	Repeatable *bool  `yaml:"repeatable"`
	Min        int    `yaml:"min"`
	Max        int    `yaml:"max"`

	// relation / media
	Model        string `yaml:"model"`
	Collection   string `yaml:"collection"`
	Via          string `yaml:"via"`
	Plugin       string `yaml:"plugin"`
	Dominant     bool   `yaml:"dominant"`
	AutoPopulate *bool  `yaml:"autoPopulate"`
	Multiple     bool   `yaml:"multiple"`
}

// IsRequired reports whether the attribute must be present on create.
// Groups are required unless declared otherwise.
func (a *Attribute) IsRequired() bool {
	if a.Required != nil {
		return *a.Required
	}
	return a.Type == TypeGroup
}

// IsRepeatable reports whether a group attribute holds a list.
// Groups are repeatable unless declared otherwise.
func (a *Attribute) IsRepeatable() bool {
	return a.Repeatable == nil || *a.Repeatable
}

// IsPrivate reports whether the attribute is stripped from responses.
func (a *Attribute) IsPrivate() bool {
	return a.Private || a.Type == TypePassword
}

// IsScalar reports whether the attribute is stored as a column of its
// own model (as opposed to groups, relations and media).
func (a *Attribute) IsScalar() bool {
	switch a.Type {
	case TypeGroup, TypeMedia, TypeRelation:
		return false
	default:
		return true
	}
}

// IsNumeric reports whether the attribute stores a number.
func (a *Attribute) IsNumeric() bool {
	switch a.Type {
	case TypeInteger, TypeBigInteger, TypeFloat, TypeDecimal:
		return true
	default:
		return false
	}
}

// IsSearchableText reports whether the attribute takes part in full-text
// search.
func (a *Attribute) IsSearchableText() bool {
	switch a.Type {
	case TypeString, TypeText, TypeRichText:
		return !a.Private
	default:
		return false
	}
}

// normalize fills Type for relation and media declarations.
func (a *Attribute) normalize() {
	if a.Type != "" {
		if a.Type == TypeMedia && a.Collection != "" {
			a.Multiple = true
		}
		return
	}
	target := a.Model
	if target == "" {
		target = a.Collection
	}
	if target == "" {
		return
	}
	if target == FileModelUID && a.Plugin == FilePlugin {
		a.Type = TypeMedia
		a.Multiple = a.Collection != ""
		return
	}
	a.Type = TypeRelation
}

// Target returns the related model UID of a relation attribute.
func (a *Attribute) Target() string {
	if a.Model != "" {
		return a.Model
	}
	return a.Collection
}

// Coerce converts an input value (typically decoded JSON or a query
// string) into the value bound to the attribute's column.
func (a *Attribute) Coerce(v any) (any, error) {
	v = deref(v)
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch a.Type {
	case TypeString, TypeText, TypeRichText, TypeEmail, TypePassword, TypeUID:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, a.invalid(v, err)
		}
		return s, nil
	case TypeEnumeration:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, a.invalid(v, err)
		}
		if !slices.Contains(a.Enum, s) {
			return nil, fmt.Errorf("%w: %s must be one of %v", ErrInvalidValue, a.Name, a.Enum)
		}
		return s, nil
	case TypeInteger, TypeBigInteger:
		n, err := cast.ToInt64E(v)
		if err != nil {
			return nil, a.invalid(v, err)
		}
		return n, nil
	case TypeFloat, TypeDecimal:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, a.invalid(v, err)
		}
		return f, nil
	case TypeBoolean:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, a.invalid(v, err)
		}
		return b, nil
	case TypeDateTime:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, a.invalid(v, err)
		}
		return t.UTC(), nil
	case TypeDate:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, a.invalid(v, err)
		}
		return t.Format(time.DateOnly), nil
	case TypeTime:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, a.invalid(v, err)
		}
		if _, err := time.Parse(time.TimeOnly, s); err != nil {
			return nil, a.invalid(v, err)
		}
		return s, nil
	case TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, a.invalid(v, err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a column attribute", ErrInvalidValue, a.Name)
	}
}

// deref follows pointers; a nil pointer of any type becomes nil.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

// Decode converts a value scanned from the database into its API form.
// Values that cannot be converted are returned unchanged.
func (a *Attribute) Decode(v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch a.Type {
	case TypeInteger, TypeBigInteger:
		if n, err := cast.ToInt64E(v); err == nil {
			return n
		}
	case TypeFloat, TypeDecimal:
		if f, err := cast.ToFloat64E(v); err == nil {
			return f
		}
	case TypeBoolean:
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
	case TypeDateTime:
		if t, err := cast.ToTimeE(v); err == nil {
			return t.UTC()
		}
	case TypeDate:
		if t, err := cast.ToTimeE(v); err == nil {
			return t.Format(time.DateOnly)
		}
	case TypeJSON:
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out
			}
		}
	}
	return v
}

func (a *Attribute) invalid(v any, err error) error {
	return fmt.Errorf("%w: %s expects %s, got %v: %w", ErrInvalidValue, a.Name, a.Type, v, err)
}

// Attributes is an ordered list of attributes. In YAML it is written as a
// mapping from attribute name to definition; declaration order is kept.
type Attributes []*Attribute

// UnmarshalYAML decodes a mapping node while keeping key order.
func (as *Attributes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: attributes must be a mapping", node.Line)
	}
	out := make(Attributes, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var attr Attribute
		if err := node.Content[i+1].Decode(&attr); err != nil {
			return fmt.Errorf("attribute %q: %w", node.Content[i].Value, err)
		}
		attr.Name = node.Content[i].Value
		attr.normalize()
		out = append(out, &attr)
	}
	*as = out
	return nil
}
