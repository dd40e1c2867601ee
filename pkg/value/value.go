// Package value implements the typed value union that flows through query
// execution. A Value is a tagged variant over null, bool, integer, double,
// string, list, map, vertex, edge and path. All relational and arithmetic
// operators are defined on the union with a fixed numeric promotion table.
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/orneryd/runegraph/pkg/storage"
)

// Type is the observable variant tag of a Value.
type Type int

const (
	TypeNull Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeList
	TypeMap
	TypeVertex
	TypeEdge
	TypePath
)

// String returns the tag name, used in error messages.
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypeBool:
		return "Bool"
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeString:
		return "String"
	case TypeList:
		return "List"
	case TypeMap:
		return "Map"
	case TypeVertex:
		return "Vertex"
	case TypeEdge:
		return "Edge"
	case TypePath:
		return "Path"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Path is an alternating vertex/edge sequence assembled by named-path
// construction. Vertices has one more element than Edges.
type Path struct {
	Vertices []*storage.Node
	Edges    []*storage.Edge
}

// Value is the tagged union. The zero Value is Null.
type Value struct {
	typ Type

	boolV   bool
	intV    int64
	floatV  float64
	stringV string
	listV   []Value
	mapV    map[string]Value
	vertexV *storage.Node
	edgeV   *storage.Edge
	pathV   *Path
}

// Null is the null Value.
var Null = Value{}

// Bool wraps a bool.
func Bool(b bool) Value { return Value{typ: TypeBool, boolV: b} }

// Int wraps an int64.
func Int(i int64) Value { return Value{typ: TypeInt, intV: i} }

// Float wraps a float64.
func Float(f float64) Value { return Value{typ: TypeFloat, floatV: f} }

// String wraps a string.
func String(s string) Value { return Value{typ: TypeString, stringV: s} }

// List wraps a list of values.
func List(vs ...Value) Value { return Value{typ: TypeList, listV: vs} }

// Map wraps a string-keyed map of values.
func Map(m map[string]Value) Value { return Value{typ: TypeMap, mapV: m} }

// Vertex wraps a graph node.
func Vertex(n *storage.Node) Value { return Value{typ: TypeVertex, vertexV: n} }

// Edge wraps a graph edge.
func Edge(e *storage.Edge) Value { return Value{typ: TypeEdge, edgeV: e} }

// PathOf wraps a path.
func PathOf(p *Path) Value { return Value{typ: TypePath, pathV: p} }

// Type returns the variant tag.
func (v Value) Type() Type { return v.typ }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.typ == TypeNull }

// AsBool returns the bool payload. Callers must check the tag first.
func (v Value) AsBool() bool { return v.boolV }

// AsInt returns the integer payload.
func (v Value) AsInt() int64 { return v.intV }

// AsFloat returns the double payload, promoting an integer payload.
func (v Value) AsFloat() float64 {
	if v.typ == TypeInt {
		return float64(v.intV)
	}
	return v.floatV
}

// AsString returns the string payload.
func (v Value) AsString() string { return v.stringV }

// AsList returns the list payload.
func (v Value) AsList() []Value { return v.listV }

// AsMap returns the map payload.
func (v Value) AsMap() map[string]Value { return v.mapV }

// AsVertex returns the vertex payload.
func (v Value) AsVertex() *storage.Node { return v.vertexV }

// AsEdge returns the edge payload.
func (v Value) AsEdge() *storage.Edge { return v.edgeV }

// AsPath returns the path payload.
func (v Value) AsPath() *Path { return v.pathV }

// IsNumeric reports whether the value is an integer or a double.
func (v Value) IsNumeric() bool { return v.typ == TypeInt || v.typ == TypeFloat }

// FromProperty converts a stored property value into a Value. Property
// stores hold plain Go values (see storage.Node.Properties); unknown types
// are rejected.
func FromProperty(p any) (Value, error) {
	switch x := p.(type) {
	case nil:
		return Null, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []any:
		list := make([]Value, len(x))
		for i, e := range x {
			v, err := FromProperty(e)
			if err != nil {
				return Null, err
			}
			list[i] = v
		}
		return List(list...), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			v, err := FromProperty(e)
			if err != nil {
				return Null, err
			}
			m[k] = v
		}
		return Map(m), nil
	}
	return Null, fmt.Errorf("unsupported property type %T", p)
}

// ToProperty converts a Value into the plain Go form used by property
// stores. Graph entities cannot be stored as properties.
func (v Value) ToProperty() (any, error) {
	switch v.typ {
	case TypeNull:
		return nil, nil
	case TypeBool:
		return v.boolV, nil
	case TypeInt:
		return v.intV, nil
	case TypeFloat:
		return v.floatV, nil
	case TypeString:
		return v.stringV, nil
	case TypeList:
		list := make([]any, len(v.listV))
		for i, e := range v.listV {
			p, err := e.ToProperty()
			if err != nil {
				return nil, err
			}
			list[i] = p
		}
		return list, nil
	case TypeMap:
		m := make(map[string]any, len(v.mapV))
		for k, e := range v.mapV {
			p, err := e.ToProperty()
			if err != nil {
				return nil, err
			}
			m[k] = p
		}
		return m, nil
	}
	return nil, fmt.Errorf("%s value cannot be stored as a property", v.typ)
}

// String renders the value. Lists render as [a, b], maps as {k: v} with
// keys sorted, paths as (v)-[TYPE]->(v) segments.
func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBool:
		return strconv.FormatBool(v.boolV)
	case TypeInt:
		return strconv.FormatInt(v.intV, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.floatV, 'g', -1, 64)
	case TypeString:
		return v.stringV
	case TypeList:
		parts := make([]string, len(v.listV))
		for i, e := range v.listV {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeMap:
		keys := make([]string, 0, len(v.mapV))
		for k := range v.mapV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.mapV[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case TypeVertex:
		var sb strings.Builder
		sb.WriteByte('(')
		for _, l := range v.vertexV.Labels {
			sb.WriteByte(':')
			sb.WriteString(l)
		}
		sb.WriteByte(')')
		return sb.String()
	case TypeEdge:
		return "[:" + v.edgeV.Type + "]"
	case TypePath:
		var sb strings.Builder
		for i, n := range v.pathV.Vertices {
			sb.WriteString(Vertex(n).String())
			if i < len(v.pathV.Edges) {
				sb.WriteString("-" + Edge(v.pathV.Edges[i]).String() + "->")
			}
		}
		return sb.String()
	}
	return ""
}
