package value

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrZeroDivision is returned by Divide and Modulo for an integer zero
// divisor.
var ErrZeroDivision = errors.New("division by zero")

// TypeError reports an operation applied to operands it is not defined on.
type TypeError struct {
	Op   string
	A, B Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("invalid types %s and %s for operator %q", e.A, e.B, e.Op)
}

// Equals compares two values. If either side is null the result is null.
// Numeric operands compare across Int/Float via promotion; otherwise
// operands of different tags compare unequal.
func Equals(a, b Value) Value {
	if a.IsNull() || b.IsNull() {
		return Null
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.typ == TypeInt && b.typ == TypeInt {
			return Bool(a.intV == b.intV)
		}
		return Bool(a.AsFloat() == b.AsFloat())
	}
	if a.typ != b.typ {
		return Bool(false)
	}
	switch a.typ {
	case TypeBool:
		return Bool(a.boolV == b.boolV)
	case TypeString:
		return Bool(a.stringV == b.stringV)
	case TypeList:
		if len(a.listV) != len(b.listV) {
			return Bool(false)
		}
		sawNull := false
		for i := range a.listV {
			eq := Equals(a.listV[i], b.listV[i])
			if eq.IsNull() {
				sawNull = true
				continue
			}
			if !eq.boolV {
				return Bool(false)
			}
		}
		if sawNull {
			return Null
		}
		return Bool(true)
	case TypeMap:
		if len(a.mapV) != len(b.mapV) {
			return Bool(false)
		}
		sawNull := false
		for k, av := range a.mapV {
			bv, ok := b.mapV[k]
			if !ok {
				return Bool(false)
			}
			eq := Equals(av, bv)
			if eq.IsNull() {
				sawNull = true
				continue
			}
			if !eq.boolV {
				return Bool(false)
			}
		}
		if sawNull {
			return Null
		}
		return Bool(true)
	case TypeVertex:
		return Bool(a.vertexV.ID == b.vertexV.ID)
	case TypeEdge:
		return Bool(a.edgeV.ID == b.edgeV.ID)
	case TypePath:
		if len(a.pathV.Edges) != len(b.pathV.Edges) {
			return Bool(false)
		}
		for i := range a.pathV.Edges {
			if a.pathV.Edges[i].ID != b.pathV.Edges[i].ID {
				return Bool(false)
			}
		}
		for i := range a.pathV.Vertices {
			if a.pathV.Vertices[i].ID != b.pathV.Vertices[i].ID {
				return Bool(false)
			}
		}
		return Bool(true)
	}
	return Bool(false)
}

// Less compares two orderable values. If either side is null the result is
// null. Only numerics (cross-promoted), strings and bools are orderable.
func Less(a, b Value) (Value, error) {
	if a.IsNull() || b.IsNull() {
		return Null, nil
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.typ == TypeInt && b.typ == TypeInt {
			return Bool(a.intV < b.intV), nil
		}
		return Bool(a.AsFloat() < b.AsFloat()), nil
	}
	if a.typ == TypeString && b.typ == TypeString {
		return Bool(a.stringV < b.stringV), nil
	}
	if a.typ == TypeBool && b.typ == TypeBool {
		return Bool(!a.boolV && b.boolV), nil
	}
	return Null, &TypeError{Op: "<", A: a.typ, B: b.typ}
}

// Add adds numerics, concatenates strings, and concatenates lists. A null
// operand yields null.
func Add(a, b Value) (Value, error) {
	if a.IsNull() || b.IsNull() {
		return Null, nil
	}
	if a.typ == TypeString && b.typ == TypeString {
		return String(a.stringV + b.stringV), nil
	}
	if a.typ == TypeList && b.typ == TypeList {
		out := make([]Value, 0, len(a.listV)+len(b.listV))
		out = append(out, a.listV...)
		out = append(out, b.listV...)
		return List(out...), nil
	}
	return arith("+", a, b,
		func(x, y int64) int64 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Subtract subtracts numerics.
func Subtract(a, b Value) (Value, error) {
	if a.IsNull() || b.IsNull() {
		return Null, nil
	}
	return arith("-", a, b,
		func(x, y int64) int64 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Multiply multiplies numerics.
func Multiply(a, b Value) (Value, error) {
	if a.IsNull() || b.IsNull() {
		return Null, nil
	}
	return arith("*", a, b,
		func(x, y int64) int64 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// Divide divides numerics. Integer division by zero is an error; float
// division follows IEEE semantics.
func Divide(a, b Value) (Value, error) {
	if a.IsNull() || b.IsNull() {
		return Null, nil
	}
	if a.typ == TypeInt && b.typ == TypeInt {
		if b.intV == 0 {
			return Null, ErrZeroDivision
		}
		return Int(a.intV / b.intV), nil
	}
	return arith("/", a, b, nil,
		func(x, y float64) float64 { return x / y })
}

// Modulo takes the remainder of integer division.
func Modulo(a, b Value) (Value, error) {
	if a.IsNull() || b.IsNull() {
		return Null, nil
	}
	if a.typ != TypeInt || b.typ != TypeInt {
		return Null, &TypeError{Op: "%", A: a.typ, B: b.typ}
	}
	if b.intV == 0 {
		return Null, ErrZeroDivision
	}
	return Int(a.intV % b.intV), nil
}

// Negate negates a numeric value.
func Negate(a Value) (Value, error) {
	switch a.typ {
	case TypeNull:
		return Null, nil
	case TypeInt:
		return Int(-a.intV), nil
	case TypeFloat:
		return Float(-a.floatV), nil
	}
	return Null, &TypeError{Op: "-", A: a.typ, B: TypeNull}
}

func arith(op string, a, b Value, fi func(int64, int64) int64, ff func(float64, float64) float64) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return Null, &TypeError{Op: op, A: a.typ, B: b.typ}
	}
	if fi != nil && a.typ == TypeInt && b.typ == TypeInt {
		return Int(fi(a.intV, b.intV)), nil
	}
	return Float(ff(a.AsFloat(), b.AsFloat())), nil
}

// Key renders a deterministic encoding of the value usable as a
// deduplication or grouping key. Graph entities are keyed by identifier.
func (v Value) Key() string {
	var sb strings.Builder
	v.writeKey(&sb)
	return sb.String()
}

func (v Value) writeKey(sb *strings.Builder) {
	switch v.typ {
	case TypeNull:
		sb.WriteString("n;")
	case TypeBool:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(v.boolV))
		sb.WriteByte(';')
	case TypeInt:
		sb.WriteString("i:")
		sb.WriteString(strconv.FormatInt(v.intV, 10))
		sb.WriteByte(';')
	case TypeFloat:
		sb.WriteString("f:")
		sb.WriteString(strconv.FormatFloat(v.floatV, 'b', -1, 64))
		sb.WriteByte(';')
	case TypeString:
		sb.WriteString("s:")
		sb.WriteString(strconv.Itoa(len(v.stringV)))
		sb.WriteByte(':')
		sb.WriteString(v.stringV)
		sb.WriteByte(';')
	case TypeList:
		sb.WriteString("l:")
		sb.WriteString(strconv.Itoa(len(v.listV)))
		sb.WriteByte('[')
		for _, e := range v.listV {
			e.writeKey(sb)
		}
		sb.WriteByte(']')
	case TypeMap:
		keys := make([]string, 0, len(v.mapV))
		for k := range v.mapV {
			keys = append(keys, k)
		}
		sortStrings(keys)
		sb.WriteString("m:")
		sb.WriteString(strconv.Itoa(len(keys)))
		sb.WriteByte('{')
		for _, k := range keys {
			sb.WriteString(strconv.Itoa(len(k)))
			sb.WriteByte(':')
			sb.WriteString(k)
			sb.WriteByte('=')
			v.mapV[k].writeKey(sb)
		}
		sb.WriteByte('}')
	case TypeVertex:
		sb.WriteString("v:")
		sb.WriteString(string(v.vertexV.ID))
		sb.WriteByte(';')
	case TypeEdge:
		sb.WriteString("e:")
		sb.WriteString(string(v.edgeV.ID))
		sb.WriteByte(';')
	case TypePath:
		sb.WriteString("p:")
		for _, n := range v.pathV.Vertices {
			sb.WriteString(string(n.ID))
			sb.WriteByte(',')
		}
		for _, e := range v.pathV.Edges {
			sb.WriteString(string(e.ID))
			sb.WriteByte(',')
		}
		sb.WriteByte(';')
	}
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j] < ss[j-1]; j-- {
			ss[j], ss[j-1] = ss[j-1], ss[j]
		}
	}
}
