package selection_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n9te9/federation-core/internal/selection"
	"github.com/n9te9/federation-core/internal/value"
)

func mustParseJSON(t *testing.T, s string) value.Value {
	t.Helper()
	v, err := value.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

// spec §8 end-to-end scenario 1: Basic field.
func TestApply_BasicField(t *testing.T) {
	prog := selection.MustParse(`currentUser { id name }`)
	data := mustParseJSON(t, `{"currentUser":{"id":"1","name":"Ada"}}`)

	result, errs := selection.Apply(prog, data, nil)
	assert.Empty(t, errs)

	out, err := result.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"currentUser":{"id":"1","name":"Ada"}}`, string(out))
}

// spec §8 end-to-end scenario 2: Optional chain over null.
func TestApply_OptionalChainOverNull(t *testing.T) {
	prog := selection.MustParse(`$.user?.profile.name`)
	data := mustParseJSON(t, `{"user":null}`)

	result, errs := selection.Apply(prog, data, nil)
	require.Empty(t, errs)
	assert.True(t, result.IsNull())
}

// spec §8 end-to-end scenario 6: Arrow method chain.
func TestApply_ArrowMethodChain(t *testing.T) {
	prog := selection.MustParse(`batch.id->map({batchId: @})->first`)
	data := mustParseJSON(t, `{"batch":[{"id":1},{"id":2},{"id":3}]}`)

	result, errs := selection.Apply(prog, data, nil)
	require.Empty(t, errs)

	out, err := result.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"batchId":1}`, string(out))
}

// spec §8 boundary behavior: empty array ->first / ->last.
func TestApply_FirstLastOnEmptyArray(t *testing.T) {
	for _, method := range []string{"first", "last"} {
		prog := selection.MustParse("items->" + method)
		data := mustParseJSON(t, `{"items":[]}`)

		result, errs := selection.Apply(prog, data, nil)
		assert.Empty(t, errs, method)
		assert.True(t, result.IsMissing(), method)
	}
}

// spec §8 boundary behavior: property access on null without optional chain.
func TestApply_PropertyOnNullWithoutOptional(t *testing.T) {
	prog := selection.MustParse(`$.user.name`)
	data := mustParseJSON(t, `{"user":null}`)

	result, errs := selection.Apply(prog, data, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "not found in null")
	assert.True(t, result.IsMissing())
}

// spec §4.1: missing field in a named selection emits an error but still
// returns a partially-populated object.
func TestApply_MissingFieldRecordsErrorAndContinues(t *testing.T) {
	prog := selection.MustParse(`id missing`)
	data := mustParseJSON(t, `{"id":"1"}`)

	result, errs := selection.Apply(prog, data, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "Property .missing not found in object", errs[0].Message)

	out, err := result.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, string(out))
}

// spec §4.1: array mapping tie-breaks — Key applied to an array of length n
// produces a length-n output array.
func TestApply_KeyMapsOverArray(t *testing.T) {
	prog := selection.MustParse(`items.id`)
	data := mustParseJSON(t, `{"items":[{"id":1},{"id":2},null]}`)

	result, errs := selection.Apply(prog, data, nil)
	assert.Empty(t, errs)

	out, err := result.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,null]`, string(out))
}

// spec §8 round-trip law: evaluating a program of pure literals does not
// depend on $ or variables.
func TestApply_LiteralProgramIsPure(t *testing.T) {
	prog := selection.MustParse(`lit: [1, 2, "three"]`)

	r1, e1 := selection.Apply(prog, mustParseJSON(t, `{"a":1}`), nil)
	r2, e2 := selection.Apply(prog, mustParseJSON(t, `{"b":2}`), map[string]value.Value{"x": value.Int(9)})

	assert.Empty(t, e1)
	assert.Empty(t, e2)

	b1, _ := r1.MarshalJSON()
	b2, _ := r2.MarshalJSON()
	assert.JSONEq(t, string(b1), string(b2))
}

// spec §8 invariant 8 analogue for selection: deterministic ordering of
// NamedSelection entries is preserved in the output object's key order.
func TestApply_PreservesSelectionOrder(t *testing.T) {
	prog := selection.MustParse(`z y x`)
	data := mustParseJSON(t, `{"x":1,"y":2,"z":3}`)

	result, errs := selection.Apply(prog, data, nil)
	require.Empty(t, errs)

	obj, ok := result.Object()
	require.True(t, ok)
	assert.Equal(t, []string{"z", "y", "x"}, obj.Keys())
}

// ID variable exceeding i32 range survives without precision loss (spec §8).
func TestApply_LargeIntegerPreservesPrecision(t *testing.T) {
	prog := selection.MustParse(`id`)
	data := mustParseJSON(t, `{"id":9007199254740993}`)

	result, errs := selection.Apply(prog, data, nil)
	require.Empty(t, errs)

	obj, _ := result.Object()
	idVal, _ := obj.Get("id")
	i, ok := idVal.Int64()
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), i)
}
