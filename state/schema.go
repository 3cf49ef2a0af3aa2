package state

import (
	"fmt"
	"maps"
)

// Kind is the value type of a field.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindMap    Kind = "map"
	KindAny    Kind = "any"
)

// Policy is the rule used to combine a written value with the existing one.
type Policy string

const (
	Replace Policy = "replace"
	Append  Policy = "append"
	Add     Policy = "add"
)

// ParseKind maps a textual kind (as used in HCL graph files) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindString, KindNumber, KindBool, KindList, KindMap, KindAny:
		return k, nil
	case "":
		return KindAny, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// ParsePolicy maps a textual policy to a Policy. Empty means Replace.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case Replace, Append, Add:
		return p, nil
	case "":
		return Replace, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", s)
	}
}

// Field declares one state field.
type Field struct {
	Name        string
	Kind        Kind
	Policy      Policy
	Default     any
	Description string
}

// String declares a replace-policy string field.
func String(name string) Field { return Field{Name: name, Kind: KindString, Policy: Replace} }

// Number declares a replace-policy number field.
func Number(name string) Field { return Field{Name: name, Kind: KindNumber, Policy: Replace} }

// Bool declares a replace-policy bool field.
func Bool(name string) Field { return Field{Name: name, Kind: KindBool, Policy: Replace} }

// List declares a replace-policy list field.
func List(name string) Field { return Field{Name: name, Kind: KindList, Policy: Replace} }

// Map declares a replace-policy map field.
func Map(name string) Field { return Field{Name: name, Kind: KindMap, Policy: Replace} }

// Counter declares a number field with the Add policy, starting at zero.
func Counter(name string) Field {
	return Field{Name: name, Kind: KindNumber, Policy: Add, Default: 0.0}
}

// Appending declares a list field with the Append policy.
func Appending(name string) Field { return Field{Name: name, Kind: KindList, Policy: Append} }

// WithDefault returns a copy of f with the given default.
func (f Field) WithDefault(v any) Field {
	f.Default = v
	return f
}

// Describe returns a copy of f with the given description.
func (f Field) Describe(desc string) Field {
	f.Description = desc
	return f
}

// Schema is an immutable set of field declarations.
type Schema struct {
	order  []string
	fields map[string]Field
}

// NewSchema validates the declarations and builds a Schema.
// Add requires a number field, Append requires a list field, and
// defaults must match the field's kind.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	for _, f := range fields {
		if f.Name == "" {
			return nil, &SchemaError{Msg: "field with empty name"}
		}
		if _, dup := s.fields[f.Name]; dup {
			return nil, &SchemaError{Field: f.Name, Msg: "declared twice"}
		}
		if f.Kind == "" {
			f.Kind = KindAny
		}
		if f.Policy == "" {
			f.Policy = Replace
		}
		switch f.Policy {
		case Add:
			if f.Kind != KindNumber {
				return nil, &SchemaError{Field: f.Name, Msg: "add policy requires a number field"}
			}
		case Append:
			if f.Kind != KindList {
				return nil, &SchemaError{Field: f.Name, Msg: "append policy requires a list field"}
			}
		case Replace:
		default:
			return nil, &SchemaError{Field: f.Name, Msg: fmt.Sprintf("unknown policy %q", f.Policy)}
		}
		if f.Default == nil {
			f.Default = zero(f.Kind)
		} else {
			def, err := normalize(f.Kind, f.Default)
			if err != nil {
				return nil, &SchemaError{Field: f.Name, Msg: "default: " + err.Error()}
			}
			f.Default = def
		}
		s.fields[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Use for package-level
// graph declarations.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Field returns the declaration of name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns the declarations in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.fields[n])
	}
	return out
}

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	return append([]string(nil), s.order...)
}

// New creates the state of a fresh execution: schema defaults overlaid
// with the caller's initial values. Initial values always replace the
// default, whatever the field's policy.
func (s *Schema) New(initial map[string]any) (*State, error) {
	st := &State{schema: s, values: make(map[string]any, len(s.order))}
	for _, n := range s.order {
		st.values[n] = deepCopy(s.fields[n].Default)
	}
	for k, v := range initial {
		f, ok := s.fields[k]
		if !ok {
			return nil, &UnknownFieldError{Field: k}
		}
		nv, err := normalize(f.Kind, v)
		if err != nil {
			return nil, &MergeConflictError{Field: k, Policy: Replace, Reason: err.Error()}
		}
		if nv == nil {
			nv = deepCopy(f.Default)
		}
		st.values[k] = nv
	}
	return st, nil
}

// Restore rebuilds a State from checkpointed values. Fields missing from
// values (for example added to the schema after the checkpoint was taken)
// get their default; unknown fields are rejected.
func (s *Schema) Restore(values map[string]any, version int64) (*State, error) {
	st, err := s.New(nil)
	if err != nil {
		return nil, err
	}
	restored := maps.Clone(st.values)
	for k, v := range values {
		f, ok := s.fields[k]
		if !ok {
			return nil, &UnknownFieldError{Field: k}
		}
		nv, err := normalize(f.Kind, v)
		if err != nil {
			return nil, &MergeConflictError{Field: k, Policy: f.Policy, Reason: "restore: " + err.Error()}
		}
		restored[k] = nv
	}
	st.values = restored
	st.version = version
	return st, nil
}
