package modelapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"modeldb-client/pkg/domain"
)

// FileName is the artifact key a model API is stored under.
const FileName = "model_api.json"

const Version = "v1"

// ErrSchema is returned when a sample cannot be described or its names
// collide.
var ErrSchema = fmt.Errorf("%w: schema", domain.ErrValidation)

type Type string

const (
	TypeNull   Type = "VertaNull"
	TypeBool   Type = "VertaBool"
	TypeFloat  Type = "VertaFloat"
	TypeString Type = "VertaString"
	TypeJSON   Type = "VertaJson"
	TypeList   Type = "VertaList"
)

// Field is one node of a schema. Composite types list their children in
// Value, in order.
type Field struct {
	Type  Type    `json:"type"`
	Name  string  `json:"name"`
	Value []Field `json:"value,omitempty"`
}

// Equal reports structural equality.
func (f Field) Equal(o Field) bool {
	if f.Type != o.Type || f.Name != o.Name || len(f.Value) != len(o.Value) {
		return false
	}
	for i := range f.Value {
		if !f.Value[i].Equal(o.Value[i]) {
			return false
		}
	}
	return true
}

// Fields returns the top-level fields: the children of a frame or record,
// or the field itself otherwise.
func (f Field) Fields() []Field {
	if f.Type == TypeList || f.Type == TypeJSON {
		return f.Value
	}
	return []Field{f}
}

// ModelAPI describes a model's input and output.
type ModelAPI struct {
	Version   string `json:"version"`
	Input     Field  `json:"input"`
	Output    Field  `json:"output"`
	ModelType string `json:"model_type,omitempty"`
}

type Option func(*ModelAPI)

// WithModelType tags the API with the model's framework or family.
func WithModelType(t string) Option {
	return func(m *ModelAPI) { m.ModelType = t }
}

// Infer derives a ModelAPI from an input and an output sample.
//
// A Frame yields one field per column, named by the column label as a
// string. A Series yields one field named after the series. Slices and
// arrays are described by their first element. Anything else is described
// as a single unnamed field.
func Infer(input, output any, opts ...Option) (*ModelAPI, error) {
	in, err := Describe(input)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	out, err := Describe(output)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	api := &ModelAPI{Version: Version, Input: in, Output: out}
	for _, opt := range opts {
		opt(api)
	}
	return api, nil
}

// Describe infers the schema of a single sample.
func Describe(data any) (Field, error) {
	return describe(data, false)
}

// describe describes data from its first element or row. When strict, every
// element or row must share that description.
func describe(data any, strict bool) (Field, error) {
	switch d := data.(type) {
	case Frame:
		return describeFrame(d, strict)
	case *Frame:
		if d == nil {
			return Field{}, fmt.Errorf("%w: nil frame", ErrSchema)
		}
		return describeFrame(*d, strict)
	case Series:
		return describeSeries(d, strict)
	case *Series:
		if d == nil {
			return Field{}, fmt.Errorf("%w: nil series", ErrSchema)
		}
		return describeSeries(*d, strict)
	case []byte, string, nil:
		return describeValue(d, "")
	}

	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() == 0 {
			return Field{}, fmt.Errorf("%w: empty sample", ErrSchema)
		}
		values := make([]any, rv.Len())
		for i := range values {
			values[i] = rv.Index(i).Interface()
		}
		return describeElements(values, "", strict)
	}
	return describeValue(data, "")
}

func describeFrame(f Frame, strict bool) (Field, error) {
	if len(f.Columns) == 0 {
		return Field{}, fmt.Errorf("%w: frame has no columns", ErrSchema)
	}
	seen := make(map[string]struct{}, len(f.Columns))
	children := make([]Field, 0, len(f.Columns))
	for _, col := range f.Columns {
		name := labelName(col.Label)
		if _, dup := seen[name]; dup {
			return Field{}, fmt.Errorf("%w: duplicate column name %q", ErrSchema, name)
		}
		seen[name] = struct{}{}

		child, err := describeSeries(Series{Name: col.Label, Values: col.Values}, strict)
		if err != nil {
			return Field{}, err
		}
		children = append(children, child)
	}
	return Field{Type: TypeList, Name: "", Value: children}, nil
}

func describeSeries(s Series, strict bool) (Field, error) {
	name := labelName(s.Name)
	if len(s.Values) == 0 {
		return Field{}, fmt.Errorf("%w: column %q has no values", ErrSchema, name)
	}
	return describeElements(s.Values, name, strict)
}

func describeElements(values []any, name string, strict bool) (Field, error) {
	first, err := describeValue(values[0], name)
	if err != nil || !strict {
		return first, err
	}
	for i, v := range values[1:] {
		got, err := describeValue(v, name)
		if err != nil {
			return Field{}, err
		}
		if !first.Equal(got) {
			return Field{}, fmt.Errorf("%w: %q element %d is %s, element 0 is %s", ErrSchema, name, i+1, got.Type, first.Type)
		}
	}
	return first, nil
}

func describeValue(data any, name string) (Field, error) {
	switch d := data.(type) {
	case nil:
		return Field{Type: TypeNull, Name: name}, nil
	case bool:
		return Field{Type: TypeBool, Name: name}, nil
	case string, []byte, json.RawMessage:
		return Field{Type: TypeString, Name: name}, nil
	case json.Number:
		return Field{Type: TypeFloat, Name: name}, nil
	case domain.Value:
		return describeValue(d.Interface(), name)
	}

	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Field{Type: TypeNull, Name: name}, nil
		}
		return describeValue(rv.Elem().Interface(), name)
	case reflect.Bool:
		return Field{Type: TypeBool, Name: name}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Field{Type: TypeFloat, Name: name}, nil
	case reflect.String:
		return Field{Type: TypeString, Name: name}, nil
	case reflect.Map:
		return describeMap(rv, name)
	case reflect.Slice, reflect.Array:
		children := make([]Field, rv.Len())
		for i := range children {
			child, err := describeValue(rv.Index(i).Interface(), fmt.Sprint(i))
			if err != nil {
				return Field{}, err
			}
			children[i] = child
		}
		if len(children) == 0 {
			children = nil
		}
		return Field{Type: TypeList, Name: name, Value: children}, nil
	}
	return Field{}, fmt.Errorf("%w: uninterpretable type %T", ErrSchema, data)
}

// describeMap produces a record with children sorted by coerced key.
func describeMap(rv reflect.Value, name string) (Field, error) {
	type entry struct {
		name  string
		value any
	}
	entries := make([]entry, 0, rv.Len())
	seen := make(map[string]struct{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := labelName(iter.Key().Interface())
		if _, dup := seen[key]; dup {
			return Field{}, fmt.Errorf("%w: duplicate key %q", ErrSchema, key)
		}
		seen[key] = struct{}{}
		entries = append(entries, entry{name: key, value: iter.Value().Interface()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var children []Field
	for _, e := range entries {
		child, err := describeValue(e.value, e.name)
		if err != nil {
			return Field{}, err
		}
		children = append(children, child)
	}
	return Field{Type: TypeJSON, Name: name, Value: children}, nil
}

func labelName(label any) string {
	if label == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(label))
}

// ============================================================================
// Validation
// ============================================================================

// Validate reports whether payload has exactly the structure of schema.
// Every element of a sequence and every row of a frame is checked.
func Validate(schema Field, payload any) bool {
	got, err := describe(payload, true)
	if err != nil {
		return false
	}
	return schema.Equal(got)
}

// ValidateInput returns ErrSchema when payload does not match the input schema.
func (m *ModelAPI) ValidateInput(payload any) error {
	return check("input", m.Input, payload)
}

// ValidateOutput returns ErrSchema when payload does not match the output schema.
func (m *ModelAPI) ValidateOutput(payload any) error {
	return check("output", m.Output, payload)
}

func check(side string, schema Field, payload any) error {
	got, err := describe(payload, true)
	if err != nil {
		return fmt.Errorf("%s: %w", side, err)
	}
	if !schema.Equal(got) {
		return fmt.Errorf("%w: %s does not match model api", ErrSchema, side)
	}
	return nil
}

// ============================================================================
// Encoding
// ============================================================================

// Bytes encodes the API as JSON.
func (m *ModelAPI) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Parse decodes a ModelAPI from r.
func Parse(r io.Reader) (*ModelAPI, error) {
	var m ModelAPI
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode model api: %v", domain.ErrDeserialization, err)
	}
	if m.Version == "" {
		return nil, fmt.Errorf("%w: model api has no version", domain.ErrDeserialization)
	}
	return &m, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(b []byte) (*ModelAPI, error) {
	return Parse(bytes.NewReader(b))
}

// IsSchemaError reports whether err came from schema inference or validation.
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchema)
}
