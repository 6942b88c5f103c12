// Package option implements reflective option binding (C4, §4.4): for each
// module type, discover option-bearing fields via struct tags, bind a
// string→string map onto them, and compute a deterministic variant-id from
// the subset of options that change the result binary.
//
// The reflection-over-struct-tags technique mirrors the tag-driven CLI
// binding in the pack's github.com/alecthomas/kong (used by banksean-sand);
// here it is applied directly against the standard library's reflect
// package rather than a CLI framework, because the struct being bound is an
// arbitrary user-defined options holder supplied by the out-of-scope module
// loader, not a fixed command struct.
package option

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// NameRegexp is the canonical option-name pattern (§4.4).
var NameRegexp = regexp.MustCompile(`^[A-Za-z_\-+$@.]+[A-Za-z0-9_\-+$@.]*$`)

// BadOptionName is returned when a declared option's name fails NameRegexp.
type BadOptionName struct {
	Name string
	// Column is the 1-based byte offset of the first character that broke
	// the match, or -1 if the name was empty.
	Column int
}

func (e *BadOptionName) Error() string {
	return xerrors.Errorf("bad option name %q at column %d", e.Name, e.Column).Error()
}

// MissingOption is returned when a required option is absent from the
// binding map.
type MissingOption struct {
	Name string
}

func (e *MissingOption) Error() string {
	return xerrors.Errorf("missing required option %q", e.Name).Error()
}

// BadOptionValue is returned when a present option's raw value fails to
// parse into the field's nominal type.
type BadOptionValue struct {
	Name string
	Raw  string
	Type string
}

func (e *BadOptionValue) Error() string {
	return xerrors.Errorf("option %q: cannot parse %q as %s", e.Name, e.Raw, e.Type).Error()
}

// Descriptor is the declared metadata for one option field (§4.4).
type Descriptor struct {
	Name                string
	Description         string
	Required            bool
	ChangesResultBinary bool
	// DefaultFactory, if non-nil, is invoked to populate a missing,
	// non-required option (§4.4 step 3). Its return value is parsed exactly
	// as if it had been supplied by the caller.
	DefaultFactory func() string

	fieldIndex int
}

// Bound is one resolved (descriptor, raw-or-default string value) pair,
// produced by Bind. It is the input to variant-id hashing (§4.4, "Variant-id
// is computed after successful binding").
type Bound struct {
	Descriptor Descriptor
	Raw        string
}

// tag holds the parsed contents of an `ebuild:"..."` struct tag.
type tag struct {
	name                string
	description         string
	required            bool
	changesResultBinary bool
}

func parseTag(raw string) (tag, bool) {
	if raw == "" {
		return tag{}, false
	}
	var t tag
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "required":
			t.required = true
		case part == "changes_result_binary":
			t.changesResultBinary = true
		case strings.HasPrefix(part, "name="):
			t.name = strings.TrimPrefix(part, "name=")
		case strings.HasPrefix(part, "desc="):
			t.description = strings.TrimPrefix(part, "desc=")
		}
	}
	return t, true
}

// Describe discovers option-bearing fields on the struct pointed to by
// holder via reflection over `ebuild:"..."` struct tags (§4.4). holder must
// be a non-nil pointer to a struct; fields without an `ebuild` tag are
// ignored.
func Describe(holder any) ([]Descriptor, error) {
	v := reflect.ValueOf(holder)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, xerrors.Errorf("option.Describe: holder must be a non-nil pointer to a struct, got %T", holder)
	}
	elemType := v.Elem().Type()
	var out []Descriptor
	for i := 0; i < elemType.NumField(); i++ {
		field := elemType.Field(i)
		t, ok := parseTag(field.Tag.Get("ebuild"))
		if !ok {
			continue
		}
		name := t.name
		if name == "" {
			name = field.Name
		}
		if !NameRegexp.MatchString(name) {
			col := firstBadColumn(name)
			return nil, &BadOptionName{Name: name, Column: col}
		}
		out = append(out, Descriptor{
			Name:                name,
			Description:         t.description,
			Required:            t.required,
			ChangesResultBinary: t.changesResultBinary,
			fieldIndex:          i,
		})
	}
	return out, nil
}

func firstBadColumn(name string) int {
	if name == "" {
		return -1
	}
	// Re-derive the failure position by growing the prefix one rune at a
	// time against the same grammar the compiled regexp encodes.
	first := regexp.MustCompile(`^[A-Za-z_\-+$@.]`)
	rest := regexp.MustCompile(`^[A-Za-z0-9_\-+$@.]$`)
	for i, r := range name {
		s := string(r)
		ok := false
		if i == 0 {
			ok = first.MatchString(s)
		} else {
			ok = rest.MatchString(s)
		}
		if !ok {
			return i + 1
		}
	}
	return len(name) + 1
}

// Spec is the declarative form of a Descriptor, as authored in a
// module-definition file with no backing Go struct to reflect over (§4.4,
// "via reflection (or equivalent declarative mechanism)").
type Spec struct {
	Name                string
	Description         string
	Required            bool
	ChangesResultBinary bool
	Default             string
	HasDefault          bool
}

// DescribeDeclared validates a set of declaratively-authored option specs,
// the declarative-mechanism counterpart to Describe for modules loaded
// without a backing Go options struct (e.g. the YAML loader, §4.5).
func DescribeDeclared(specs []Spec) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(specs))
	for _, s := range specs {
		if !NameRegexp.MatchString(s.Name) {
			return nil, &BadOptionName{Name: s.Name, Column: firstBadColumn(s.Name)}
		}
		d := Descriptor{
			Name:                s.Name,
			Description:         s.Description,
			Required:            s.Required,
			ChangesResultBinary: s.ChangesResultBinary,
		}
		if s.HasDefault {
			def := s.Default
			d.DefaultFactory = func() string { return def }
		}
		out = append(out, d)
	}
	return out, nil
}

// BindDeclared resolves raw against descs the same way Bind does (lookup,
// required check, default), but with no struct fields to set — it is the
// declarative-mechanism counterpart to Bind.
func BindDeclared(descs []Descriptor, raw map[string]string) ([]Bound, error) {
	bound := make([]Bound, 0, len(descs))
	for _, d := range descs {
		val, present := raw[d.Name]
		if !present {
			if d.Required {
				return nil, &MissingOption{Name: d.Name}
			}
			if d.DefaultFactory != nil {
				val = d.DefaultFactory()
			} else {
				bound = append(bound, Bound{Descriptor: d})
				continue
			}
		}
		bound = append(bound, Bound{Descriptor: d, Raw: val})
	}
	return bound, nil
}

// Bind applies descs to the fields of holder using values from raw (§4.4
// binding order: lookup, required check, default, parse). It returns the
// resolved (descriptor, raw-string) pairs in descriptor-declaration order,
// suitable for variant-id hashing.
func Bind(holder any, descs []Descriptor, raw map[string]string) ([]Bound, error) {
	v := reflect.ValueOf(holder).Elem()
	bound := make([]Bound, 0, len(descs))
	for _, d := range descs {
		val, present := raw[d.Name]
		if !present {
			if d.Required {
				return nil, &MissingOption{Name: d.Name}
			}
			if d.DefaultFactory != nil {
				val = d.DefaultFactory()
			} else {
				bound = append(bound, Bound{Descriptor: d})
				continue
			}
		}
		field := v.Field(d.fieldIndex)
		if err := setField(field, val); err != nil {
			return nil, &BadOptionValue{Name: d.Name, Raw: val, Type: field.Type().String()}
		}
		bound = append(bound, Bound{Descriptor: d, Raw: val})
	}
	return bound, nil
}

func setField(field reflect.Value, raw string) error {
	// Enums: any field type whose pointer implements EnumValue parses by
	// case-insensitive member name, even when its underlying kind is an
	// integer.
	if field.CanAddr() && field.CanInterface() {
		if ev, ok := field.Addr().Interface().(EnumValue); ok {
			return ev.SetByName(raw)
		}
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := parseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	default:
		return xerrors.Errorf("unsupported option field kind %s", field.Kind())
	}
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, xerrors.Errorf("not a bool: %q", raw)
	}
}

// EnumValue lets an option field parse by case-insensitive member name
// (§4.4, "enums parse by case-insensitive member name").
type EnumValue interface {
	SetByName(name string) error
}
