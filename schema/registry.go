package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mickamy/contentorm/internal/naming"
)

// ErrUnknownModel is returned when a UID is not registered.
var ErrUnknownModel = errors.New("schema: unknown model")

var reservedNames = []string{PrimaryKey, CreatedAt, UpdatedAt}

// Registry holds content types and groups and resolves the associations
// between them.
type Registry struct {
	models map[string]*Model
	groups map[string]*Model
}

// NewRegistry returns a Registry holding only the built-in file model.
func NewRegistry() *Registry {
	r := &Registry{
		models: make(map[string]*Model),
		groups: make(map[string]*Model),
	}
	r.models[FileModelUID] = NewFileModel()
	return r
}

// Register adds m. The model is not usable until Resolve succeeds.
func (r *Registry) Register(m *Model) error {
	if !naming.IsIdent(strings.ReplaceAll(m.UID, "-", "_")) {
		return fmt.Errorf("schema: invalid model name %q", m.UID)
	}
	m.setDefaults()
	if !naming.IsIdent(m.CollectionName) {
		return fmt.Errorf("schema: %s: invalid collection name %q", m.UID, m.CollectionName)
	}

	target := r.models
	if m.Kind == KindGroup {
		target = r.groups
	}
	if _, ok := target[m.UID]; ok {
		return fmt.Errorf("schema: %s %q registered twice", m.Kind, m.UID)
	}
	target[m.UID] = m
	return nil
}

// Model returns the content type registered under uid.
func (r *Registry) Model(uid string) (*Model, error) {
	m, ok := r.models[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, uid)
	}
	return m, nil
}

// Group returns the group registered under name.
func (r *Registry) Group(name string) (*Model, error) {
	m, ok := r.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrUnknownModel, name)
	}
	return m, nil
}

// Models returns the content types sorted by UID.
func (r *Registry) Models() []*Model { return sorted(r.models) }

// Groups returns the groups sorted by UID.
func (r *Registry) Groups() []*Model { return sorted(r.groups) }

func sorted(m map[string]*Model) []*Model {
	out := make([]*Model, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// ParseModel decodes one YAML model definition.
func ParseModel(data []byte, kind Kind) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	m.Kind = kind
	return &m, nil
}

// LoadDir registers every model found under dir/content-types and
// dir/groups. Files without a name take it from the file name.
func (r *Registry) LoadDir(dir string) error {
	for sub, kind := range map[string]Kind{"content-types": KindContentType, "groups": KindGroup} {
		files, err := filepath.Glob(filepath.Join(dir, sub, "*.y*ml"))
		if err != nil {
			return fmt.Errorf("schema: %w", err)
		}
		sort.Strings(files)
		for _, path := range files {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("schema: %w", err)
			}
			m, err := ParseModel(data, kind)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if m.UID == "" {
				m.UID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			if err := r.Register(m); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return nil
}

// Resolve validates every model and computes its associations.
func (r *Registry) Resolve() error {
	var errs []error
	for _, g := range r.Groups() {
		if err := r.resolveModel(g); err != nil {
			errs = append(errs, err)
		}
	}
	for _, m := range r.Models() {
		if err := r.resolveModel(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) resolveModel(m *Model) error {
	m.associations = nil
	seen := make(map[string]struct{}, len(m.Attributes))
	for _, a := range m.Attributes {
		if !naming.IsIdent(a.Name) || slices.Contains(reservedNames, a.Name) {
			return fmt.Errorf("schema: %s: invalid attribute name %q", m.UID, a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("schema: %s: duplicate attribute %q", m.UID, a.Name)
		}
		seen[a.Name] = struct{}{}

		if err := r.resolveAttribute(m, a); err != nil {
			return fmt.Errorf("schema: %s.%s: %w", m.UID, a.Name, err)
		}
	}
	return nil
}

func (r *Registry) resolveAttribute(m *Model, a *Attribute) error {
	switch a.Type {
	case TypeString, TypeText, TypeRichText, TypeEmail, TypePassword, TypeUID,
		TypeInteger, TypeBigInteger, TypeFloat, TypeDecimal, TypeBoolean,
		TypeDate, TypeDateTime, TypeTime, TypeJSON:
		return nil
	case TypeEnumeration:
		if len(a.Enum) == 0 {
			return errors.New("enumeration without values")
		}
		return nil
	case TypeGroup:
		if m.Kind == KindGroup {
			return errors.New("groups cannot be nested")
		}
		if _, err := r.Group(a.Group); err != nil {
			return err
		}
		if a.Min < 0 || a.Max < 0 || (a.Max > 0 && a.Min > a.Max) {
			return fmt.Errorf("invalid cardinality min=%d max=%d", a.Min, a.Max)
		}
		return nil
	case TypeMedia:
		if m.Kind == KindGroup {
			return errors.New("media cannot be attached to a group")
		}
		m.associations = append(m.associations, &Association{
			Alias:        a.Name,
			Nature:       nature(a, nil),
			Target:       FileModelUID,
			AutoPopulate: a.AutoPopulate == nil || *a.AutoPopulate,
		})
		return nil
	case TypeRelation:
		if m.Kind == KindGroup {
			return errors.New("relations cannot be declared on a group")
		}
		return r.resolveRelation(m, a)
	case "":
		return errors.New("missing type")
	default:
		return fmt.Errorf("unknown type %q", a.Type)
	}
}

func (r *Registry) resolveRelation(m *Model, a *Attribute) error {
	if a.Model != "" && a.Collection != "" {
		return errors.New("model and collection are exclusive")
	}
	target, err := r.Model(a.Target())
	if err != nil {
		return err
	}

	var inverse *Attribute
	if a.Via != "" {
		inverse = target.Attribute(a.Via)
		if inverse == nil || inverse.Type != TypeRelation || inverse.Target() != m.UID || inverse.Via != a.Name {
			return fmt.Errorf("via %q does not point back from %s", a.Via, target.UID)
		}
	}

	as := &Association{
		Alias:        a.Name,
		Nature:       nature(a, inverse),
		Target:       target.UID,
		Via:          a.Via,
		Dominant:     a.Dominant,
		AutoPopulate: a.AutoPopulate == nil || *a.AutoPopulate,
	}
	switch as.Nature {
	case ManyWay:
		as.JoinTable, as.JoinColumn, as.InverseJoinColumn = manyWayTable(m, a.Name, target)
	case ManyToMany:
		as.JoinTable, as.JoinColumn, as.InverseJoinColumn = manyToManyTable(m, a.Name, target, a.Via)
	}
	m.associations = append(m.associations, as)
	return nil
}
