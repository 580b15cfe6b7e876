package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValue_Scalars(t *testing.T) {
	v, err := NewValue(3)
	require.NoError(t, err)
	n, ok := v.AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 3.0, n)

	v, err = NewValue("abc")
	require.NoError(t, err)
	assert.Equal(t, KindString, v.Kind())

	v, err = NewValue(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	v, err = NewValue(uint8(7))
	require.NoError(t, err)
	assert.Equal(t, KindNumber, v.Kind())
}

func TestNewValue_Composites(t *testing.T) {
	v, err := NewValue(map[string]any{"a": []int{1, 2}, "b": true})
	require.NoError(t, err)
	m, ok := v.AsMap()
	require.True(t, ok)
	list, ok := m["a"].AsList()
	require.True(t, ok)
	assert.Len(t, list, 2)
	assert.Equal(t, `{"a":[1,2],"b":true}`, v.String())
}

func TestNewValue_Unsupported(t *testing.T) {
	cases := []any{
		math.NaN(),
		math.Inf(1),
		[]byte("raw"),
		struct{ X int }{1},
		map[int]string{1: "a"},
		func() {},
	}
	for _, c := range cases {
		_, err := NewValue(c)
		assert.ErrorIs(t, err, ErrValidation, "%T", c)
	}
}

func TestNewScalar_RejectsComposite(t *testing.T) {
	_, err := NewScalar([]int{1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewScalar(map[string]int{"a": 1})
	assert.ErrorIs(t, err, ErrValidation)

	v, err := NewScalar(0.5)
	require.NoError(t, err)
	assert.True(t, v.IsScalar())
}

func TestValue_JSONRoundTrip(t *testing.T) {
	in := MustValue(map[string]any{"x": 1.5, "y": []any{"a", nil, false}})
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Value
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, in.Equal(out))
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, Number(1).Equal(MustValue(1)))
	assert.False(t, Number(1).Equal(String("1")))
	assert.False(t, List(Number(1)).Equal(List(Number(1), Number(2))))
	assert.True(t, Null().Equal(Value{}))
}

func TestValidateFlatKey(t *testing.T) {
	assert.NoError(t, ValidateFlatKey("metric", "val_loss-2"))
	assert.ErrorIs(t, ValidateFlatKey("metric", "val loss"), ErrValidation)
	assert.ErrorIs(t, ValidateFlatKey("metric", "a.b"), ErrValidation)
	assert.ErrorIs(t, ValidateFlatKey("metric", ""), ErrValidation)
}

func TestError_UnwrapMatchesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Kind: ErrTransport, Resource: "project", Key: "p1", StatusCode: 503, Err: cause}

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, 503, StatusCode(err))
	assert.Contains(t, err.Error(), `project "p1"`)
}

func TestAnnotate(t *testing.T) {
	err := Annotate(NewError(ErrNotFound, "", "", "missing"), "experiment", "exp")
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "experiment", e.Resource)
	assert.Equal(t, "exp", e.Key)

	plain := errors.New("plain")
	assert.Same(t, plain, Annotate(plain, "x", "y"))
	assert.NoError(t, Annotate(nil, "x", "y"))
}

func TestDatasetVersionInfo_Fingerprint(t *testing.T) {
	a := DatasetVersionInfo{Type: DatasetTypeLocal, Path: &PathDatasetVersionInfo{
		BasePath: "/data",
		Size:     3,
		DatasetPartInfos: []DatasetPartInfo{
			{Path: "/data/a", Size: 1},
			{Path: "/data/b", Size: 2},
		},
	}}
	b := DatasetVersionInfo{Type: DatasetTypeLocal, Path: &PathDatasetVersionInfo{
		BasePath: "/data",
		Size:     3,
		DatasetPartInfos: []DatasetPartInfo{
			{Path: "/data/b", Size: 2},
			{Path: "/data/a", Size: 1},
		},
	}}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Path.DatasetPartInfos[0].Size = 5
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestDatasetVersionInfo_Validate(t *testing.T) {
	assert.ErrorIs(t, DatasetVersionInfo{Type: "BOGUS"}.Validate(), ErrValidation)
	assert.ErrorIs(t, DatasetVersionInfo{Type: DatasetTypeS3}.Validate(), ErrValidation)
	assert.ErrorIs(t, DatasetVersionInfo{Type: DatasetTypeQuery}.Validate(), ErrValidation)
	assert.NoError(t, DatasetVersionInfo{Type: DatasetTypeQuery, Query: &QueryDatasetVersionInfo{Query: "SELECT 1"}}.Validate())
}
