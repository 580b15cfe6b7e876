package modelapi

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeldb-client/pkg/domain"
)

func TestInfer_Frame(t *testing.T) {
	frame := NewFrame(
		[]any{"age", "score", 3},
		[][]any{{31, 0.5, "x"}, {40, 0.7, "y"}},
	)

	api, err := Infer(frame, []any{0.9})
	require.NoError(t, err)
	assert.Equal(t, Version, api.Version)
	assert.Equal(t, Field{Type: TypeList, Name: "", Value: []Field{
		{Type: TypeFloat, Name: "age"},
		{Type: TypeFloat, Name: "score"},
		{Type: TypeString, Name: "3"},
	}}, api.Input)
	assert.Equal(t, Field{Type: TypeFloat, Name: ""}, api.Output)
	assert.Len(t, api.Input.Fields(), 3)
}

func TestInfer_DuplicateCoercedNames(t *testing.T) {
	frame := NewFrame([]any{1, "1"}, [][]any{{1, 2}})

	_, err := Infer(frame, []any{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.True(t, IsSchemaError(err))
}

func TestInfer_Deterministic(t *testing.T) {
	in := []map[string]any{{"b": 1, "a": []any{true, nil}, "c": "s"}}

	first, err := Infer(in, []int{1})
	require.NoError(t, err)
	second, err := Infer(in, []int{1})
	require.NoError(t, err)

	b1, err := first.Bytes()
	require.NoError(t, err)
	b2, err := second.Bytes()
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))

	assert.Equal(t, Field{Type: TypeJSON, Name: "", Value: []Field{
		{Type: TypeList, Name: "a", Value: []Field{
			{Type: TypeBool, Name: "0"},
			{Type: TypeNull, Name: "1"},
		}},
		{Type: TypeFloat, Name: "b"},
		{Type: TypeString, Name: "c"},
	}}, first.Input)
}

func TestInfer_SeriesAndScalars(t *testing.T) {
	api, err := Infer(Series{Name: "label", Values: []any{true, false}}, 4.2)
	require.NoError(t, err)
	assert.Equal(t, Field{Type: TypeBool, Name: "label"}, api.Input)
	assert.Equal(t, Field{Type: TypeFloat, Name: ""}, api.Output)

	api, err = Infer("text", nil, WithModelType("sklearn"))
	require.NoError(t, err)
	assert.Equal(t, TypeString, api.Input.Type)
	assert.Equal(t, TypeNull, api.Output.Type)
	assert.Equal(t, "sklearn", api.ModelType)
}

func TestInfer_Errors(t *testing.T) {
	_, err := Infer([]any{}, []any{1})
	assert.ErrorIs(t, err, ErrSchema)

	_, err = Infer(Frame{}, []any{1})
	assert.ErrorIs(t, err, ErrSchema)

	_, err = Infer([]any{struct{}{}}, []any{1})
	assert.ErrorIs(t, err, ErrSchema)

	_, err = Infer([]any{map[any]int{1: 1, "1": 2}}, []any{1})
	assert.ErrorIs(t, err, ErrSchema)
}

func TestValidate(t *testing.T) {
	frame := NewFrame([]any{"x", "y"}, [][]any{{1, "a"}})
	api, err := Infer(frame, []any{1})
	require.NoError(t, err)

	assert.True(t, Validate(api.Input, NewFrame([]any{"x", "y"}, [][]any{{7, "b"}})))
	assert.False(t, Validate(api.Input, NewFrame([]any{"x", "z"}, [][]any{{7, "b"}})))
	assert.False(t, Validate(api.Input, NewFrame([]any{"x", "y"}, [][]any{{7, 8}})))
	assert.False(t, Validate(api.Input, []any{}))

	assert.NoError(t, api.ValidateOutput([]float64{3}))
	assert.ErrorIs(t, api.ValidateInput([]any{"nope"}), ErrSchema)
}

func TestValidate_ChecksEveryRow(t *testing.T) {
	list, err := Infer([]any{1.0, 2.0}, []any{0.5})
	require.NoError(t, err)
	assert.True(t, Validate(list.Input, []any{3.0, 4.0, 5.0}))
	assert.False(t, Validate(list.Input, []any{1.0, "x"}))
	assert.ErrorIs(t, list.ValidateInput([]any{1.0, nil}), ErrSchema)

	frame, err := Infer(NewFrame([]any{"a"}, [][]any{{1.0}}), []any{0.5})
	require.NoError(t, err)
	assert.True(t, Validate(frame.Input, NewFrame([]any{"a"}, [][]any{{1.0}, {2.0}})))
	assert.False(t, Validate(frame.Input, NewFrame([]any{"a"}, [][]any{{1.0}, {"oops"}})))
	assert.ErrorIs(t, frame.ValidateInput(NewFrame([]any{"a"}, [][]any{{1.0}, {true}})), ErrSchema)

	series, err := Infer(Series{Name: "s", Values: []any{1}}, []any{0.5})
	require.NoError(t, err)
	assert.False(t, Validate(series.Input, Series{Name: "s", Values: []any{1, "2"}}))
}

func TestInfer_UsesFirstRow(t *testing.T) {
	api, err := Infer([]any{1.0, "x"}, []any{0.5})
	require.NoError(t, err)
	assert.Equal(t, TypeFloat, api.Input.Type)
}

func TestParse_RoundTrip(t *testing.T) {
	api, err := Infer([]any{[]any{1, "a"}}, []any{true})
	require.NoError(t, err)

	b, err := api.Bytes()
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(b, &generic))
	assert.Equal(t, "v1", generic["version"])

	parsed, err := Parse(bytes.NewReader(b))
	require.NoError(t, err)
	assert.True(t, api.Input.Equal(parsed.Input))
	assert.True(t, api.Output.Equal(parsed.Output))
}

func TestParse_Invalid(t *testing.T) {
	_, err := ParseBytes([]byte("not json"))
	assert.ErrorIs(t, err, domain.ErrDeserialization)

	_, err = ParseBytes([]byte(`{"input":{}}`))
	assert.ErrorIs(t, err, domain.ErrDeserialization)
}

func TestFrame_Records(t *testing.T) {
	f := NewFrame([]any{"a", 2}, [][]any{{1, "x"}, {2}})
	recs := f.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, map[string]any{"a": 1, "2": "x"}, recs[0])
	assert.Equal(t, map[string]any{"a": 2, "2": nil}, recs[1])

	col, ok := f.Column(2)
	require.True(t, ok)
	assert.Equal(t, []any{"x", nil}, col.Values)
}
