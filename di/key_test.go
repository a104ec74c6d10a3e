package di_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/sghaida/strictdi/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// KeyOf / Key
func TestKeyOf_DistinctTypesDistinctKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, di.KeyOf[Clock](), di.KeyOf[Clock]())
	assert.NotEqual(t, di.KeyOf[Clock](), di.KeyOf[Greeter]())
	assert.NotEqual(t, di.KeyOf[*memRepo](), di.KeyOf[memRepo]())
	assert.NotEqual(t, di.KeyOf[Validator[Payment]](), di.KeyOf[Validator[Refund]]())
}

func TestKey_TypeAndString(t *testing.T) {
	t.Parallel()

	k := di.KeyOf[Clock]()
	require.False(t, k.IsZero())
	assert.Equal(t, reflect.TypeFor[Clock](), k.Type())
	assert.Contains(t, k.String(), "Clock")

	var zero di.Key
	require.True(t, zero.IsZero())
	assert.Nil(t, zero.Type())
	assert.Equal(t, "<nil>", zero.String())
}

// FamilyOf
func TestFamilyOf_SameConstructorSameFamily(t *testing.T) {
	t.Parallel()

	fp := di.FamilyOf[Validator[Payment]]()
	fr := di.FamilyOf[Validator[Refund]]()

	require.False(t, fp.IsZero())
	assert.Equal(t, fp, fr)
	assert.Equal(t, 1, fp.Arity())
}

func TestFamilyOf_DifferentConstructorsDiffer(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, di.FamilyOf[Validator[Payment]](), di.FamilyOf[Handler[Payment]]())
}

func TestFamilyOf_NonGenericIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, di.FamilyOf[Clock]().IsZero())
	assert.True(t, di.FamilyOf[int]().IsZero())
	assert.True(t, di.FamilyOf[time.Time]().IsZero())
	assert.Equal(t, "<nil>", di.FamilyOf[Clock]().String())
}

func TestFamilyOf_PointerExemplarUsesElement(t *testing.T) {
	t.Parallel()

	assert.Equal(t, di.FamilyOf[box[int]](), di.FamilyOf[*box[int]]())
}

func TestFamilyOf_TwoTypeParameters(t *testing.T) {
	t.Parallel()

	f := di.FamilyOf[Pair[string, int]]()
	require.False(t, f.IsZero())
	assert.Equal(t, 2, f.Arity())
	assert.Equal(t, f, di.FamilyOf[Pair[int, Payment]]())
}

// A nested instantiation must not inflate the arity: the comma inside
// Pair[string,int] belongs to the argument, not to Validator.
func TestFamilyOf_NestedArgumentsKeepArity(t *testing.T) {
	t.Parallel()

	f := di.FamilyOf[Validator[Pair[string, int]]]()
	require.False(t, f.IsZero())
	assert.Equal(t, 1, f.Arity())
	assert.Equal(t, di.FamilyOf[Validator[Payment]](), f)
}

func TestFamily_String(t *testing.T) {
	t.Parallel()

	s := di.FamilyOf[Validator[Payment]]().String()
	assert.Contains(t, s, "Validator")
	assert.Contains(t, s, "[#1]")
}
