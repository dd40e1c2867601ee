package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/runegraph/pkg/storage"
)

func TestEqualsNullPropagation(t *testing.T) {
	assert.True(t, Equals(Null, Int(1)).IsNull())
	assert.True(t, Equals(String("x"), Null).IsNull())
	assert.True(t, Equals(Null, Null).IsNull())
}

func TestEqualsNumericPromotion(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"int int equal", Int(3), Int(3), true},
		{"int int unequal", Int(3), Int(4), false},
		{"int float equal", Int(2), Float(2.0), true},
		{"float int unequal", Float(2.5), Int(2), false},
		{"float float equal", Float(1.5), Float(1.5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Equals(tt.a, tt.b)
			require.Equal(t, TypeBool, got.Type())
			assert.Equal(t, tt.want, got.AsBool())
		})
	}
}

func TestEqualsMixedTags(t *testing.T) {
	got := Equals(Int(1), String("1"))
	require.Equal(t, TypeBool, got.Type())
	assert.False(t, got.AsBool())

	got = Equals(Bool(true), Int(1))
	require.Equal(t, TypeBool, got.Type())
	assert.False(t, got.AsBool())
}

func TestEqualsListDeep(t *testing.T) {
	a := List(Int(1), String("x"))
	b := List(Int(1), String("x"))
	assert.True(t, Equals(a, b).AsBool())

	c := List(Int(1), String("y"))
	assert.False(t, Equals(a, c).AsBool())

	// Length mismatch decides before element nulls.
	short := List(Null)
	assert.False(t, Equals(a, short).AsBool())

	// A null element makes an otherwise-equal comparison null.
	withNull := List(Int(1), Null)
	other := List(Int(1), Int(2))
	assert.True(t, Equals(withNull, other).IsNull())

	// But a definite mismatch wins over a null element.
	mismatch := List(Int(9), Null)
	assert.False(t, Equals(mismatch, other).AsBool())
}

func TestEqualsMapDeep(t *testing.T) {
	a := Map(map[string]Value{"k": Int(1), "j": String("s")})
	b := Map(map[string]Value{"k": Int(1), "j": String("s")})
	assert.True(t, Equals(a, b).AsBool())

	missing := Map(map[string]Value{"k": Int(1), "z": String("s")})
	assert.False(t, Equals(a, missing).AsBool())

	withNull := Map(map[string]Value{"k": Null, "j": String("s")})
	assert.True(t, Equals(a, withNull).IsNull())
}

func TestEqualsEntitiesByID(t *testing.T) {
	n1 := &storage.Node{ID: "n1", Labels: []string{"Person"}}
	n1b := &storage.Node{ID: "n1"}
	n2 := &storage.Node{ID: "n2"}
	assert.True(t, Equals(Vertex(n1), Vertex(n1b)).AsBool())
	assert.False(t, Equals(Vertex(n1), Vertex(n2)).AsBool())

	e1 := &storage.Edge{ID: "e1", Type: "KNOWS"}
	e1b := &storage.Edge{ID: "e1", Type: "LIKES"}
	assert.True(t, Equals(Edge(e1), Edge(e1b)).AsBool())
}

func TestLess(t *testing.T) {
	v, err := Less(Int(1), Float(1.5))
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	v, err = Less(String("a"), String("b"))
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	v, err = Less(Bool(false), Bool(true))
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	v, err = Less(Null, Int(1))
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = Less(Int(1), String("a"))
	var typeErr *TypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "<", typeErr.Op)
}

func TestAdd(t *testing.T) {
	v, err := Add(Int(2), Int(3))
	require.NoError(t, err)
	assert.Equal(t, TypeInt, v.Type())
	assert.Equal(t, int64(5), v.AsInt())

	v, err = Add(Int(2), Float(0.5))
	require.NoError(t, err)
	assert.Equal(t, TypeFloat, v.Type())
	assert.Equal(t, 2.5, v.AsFloat())

	v, err = Add(String("foo"), String("bar"))
	require.NoError(t, err)
	assert.Equal(t, "foobar", v.AsString())

	v, err = Add(List(Int(1)), List(Int(2), Int(3)))
	require.NoError(t, err)
	require.Equal(t, TypeList, v.Type())
	assert.Len(t, v.AsList(), 3)

	v, err = Add(Null, Int(1))
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = Add(String("x"), Int(1))
	assert.Error(t, err)
}

func TestDivide(t *testing.T) {
	v, err := Divide(Int(7), Int(2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.AsInt())

	_, err = Divide(Int(1), Int(0))
	assert.ErrorIs(t, err, ErrZeroDivision)

	// Float division by zero follows IEEE.
	v, err = Divide(Float(1), Float(0))
	require.NoError(t, err)
	assert.True(t, v.AsFloat() > 0 && v.AsFloat() > 1e300)
}

func TestModulo(t *testing.T) {
	v, err := Modulo(Int(7), Int(3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.AsInt())

	_, err = Modulo(Int(1), Int(0))
	assert.ErrorIs(t, err, ErrZeroDivision)

	_, err = Modulo(Float(1), Int(2))
	assert.Error(t, err)
}

func TestNegate(t *testing.T) {
	v, err := Negate(Int(4))
	require.NoError(t, err)
	assert.Equal(t, int64(-4), v.AsInt())

	v, err = Negate(Null)
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = Negate(String("x"))
	assert.Error(t, err)
}

func TestStringRendering(t *testing.T) {
	assert.Equal(t, "null", Null.String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "42", Int(42).String())
	assert.Equal(t, "1.5", Float(1.5).String())
	assert.Equal(t, "[1, a, [2]]", List(Int(1), String("a"), List(Int(2))).String())
	assert.Equal(t, "{a: 1, b: two}",
		Map(map[string]Value{"b": String("two"), "a": Int(1)}).String())

	n := &storage.Node{ID: "n1", Labels: []string{"Person", "Admin"}}
	assert.Equal(t, "(:Person:Admin)", Vertex(n).String())

	e := &storage.Edge{ID: "e1", Type: "KNOWS"}
	assert.Equal(t, "[:KNOWS]", Edge(e).String())

	n2 := &storage.Node{ID: "n2", Labels: []string{"Person"}}
	p := &Path{Vertices: []*storage.Node{n, n2}, Edges: []*storage.Edge{e}}
	assert.Equal(t, "(:Person:Admin)-[:KNOWS]->(:Person)", PathOf(p).String())
}

func TestPropertyRoundTrip(t *testing.T) {
	v, err := FromProperty(map[string]any{
		"n":    int64(1),
		"f":    2.5,
		"s":    "str",
		"b":    true,
		"list": []any{int64(1), "x"},
	})
	require.NoError(t, err)
	require.Equal(t, TypeMap, v.Type())

	back, err := v.ToProperty()
	require.NoError(t, err)
	m, ok := back.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), m["n"])
	assert.Equal(t, "str", m["s"])
}

func TestFromPropertyUnsupported(t *testing.T) {
	_, err := FromProperty(struct{}{})
	assert.Error(t, err)
}

func TestToPropertyRejectsEntities(t *testing.T) {
	_, err := Vertex(&storage.Node{ID: "n"}).ToProperty()
	assert.Error(t, err)
}

func TestKeyDeterministic(t *testing.T) {
	a := Map(map[string]Value{"x": Int(1), "y": List(String("a"), Null)})
	b := Map(map[string]Value{"y": List(String("a"), Null), "x": Int(1)})
	assert.Equal(t, a.Key(), b.Key())

	// Distinct values must not collide on naive concatenation.
	assert.NotEqual(t, List(String("ab"), String("c")).Key(),
		List(String("a"), String("bc")).Key())
	assert.NotEqual(t, Int(1).Key(), Float(1).Key())
	assert.NotEqual(t, String("true").Key(), Bool(true).Key())
}
