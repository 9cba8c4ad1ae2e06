package models

// LiteralKind discriminates the Literal union.
type LiteralKind string

const (
	LiteralKindBool   LiteralKind = "bool"
	LiteralKindInt    LiteralKind = "int"
	LiteralKindFloat  LiteralKind = "float"
	LiteralKindString LiteralKind = "string"
	LiteralKindObject LiteralKind = "object"
	LiteralKindArray  LiteralKind = "array"
)

// Literal is a typed default value attachable to an input pin that has no
// incoming connection. Exactly one value field is meaningful per Kind.
type Literal struct {
	Kind      LiteralKind `json:"kind"`
	Bool      bool        `json:"bool,omitempty"`
	Int       int64       `json:"int,omitempty"`
	Float     float64     `json:"float,omitempty"`
	String    string      `json:"string,omitempty"`
	ObjectRef string      `json:"object_ref,omitempty"`
	Array     []Literal   `json:"array,omitempty"`
}

func BoolLiteral(v bool) Literal       { return Literal{Kind: LiteralKindBool, Bool: v} }
func IntLiteral(v int64) Literal       { return Literal{Kind: LiteralKindInt, Int: v} }
func FloatLiteral(v float64) Literal   { return Literal{Kind: LiteralKindFloat, Float: v} }
func StringLiteral(v string) Literal   { return Literal{Kind: LiteralKindString, String: v} }
func ObjectLiteral(ref string) Literal { return Literal{Kind: LiteralKindObject, ObjectRef: ref} }
func ArrayLiteral(items ...Literal) Literal {
	return Literal{Kind: LiteralKindArray, Array: items}
}

// AssignableTo reports whether the literal can be used as a default for a
// pin of the given data type. Numeric widening follows the same table the
// catalog uses for connections: ints satisfy floats, either satisfies Time,
// ints satisfy enums.
func (l Literal) AssignableTo(dt DataType) bool {
	if dt.IsArray() {
		if l.Kind != LiteralKindArray {
			return false
		}

		elem := dt.Elem()
		for _, item := range l.Array {
			if !item.AssignableTo(elem) {
				return false
			}
		}

		return true
	}

	switch l.Kind {
	case LiteralKindBool:
		return dt == DataTypeBool
	case LiteralKindInt:
		return dt == DataTypeInt32 || dt == DataTypeFloat || dt == DataTypeTime || dt.IsEnum()
	case LiteralKindFloat:
		return dt == DataTypeFloat || dt == DataTypeTime || dt == DataTypeAudio
	case LiteralKindString:
		return dt == DataTypeString
	case LiteralKindObject:
		return dt == DataTypeWaveAsset || dt == DataTypeObject
	case LiteralKindArray:
		return false
	default:
		return false
	}
}

// Equal compares two literals structurally.
func (l Literal) Equal(other Literal) bool {
	if l.Kind != other.Kind {
		return false
	}

	switch l.Kind {
	case LiteralKindBool:
		return l.Bool == other.Bool
	case LiteralKindInt:
		return l.Int == other.Int
	case LiteralKindFloat:
		return l.Float == other.Float
	case LiteralKindString:
		return l.String == other.String
	case LiteralKindObject:
		return l.ObjectRef == other.ObjectRef
	case LiteralKindArray:
		if len(l.Array) != len(other.Array) {
			return false
		}

		for i := range l.Array {
			if !l.Array[i].Equal(other.Array[i]) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

func (l Literal) clone() Literal {
	if l.Kind != LiteralKindArray {
		return l
	}

	items := make([]Literal, len(l.Array))
	for i := range l.Array {
		items[i] = l.Array[i].clone()
	}

	return Literal{Kind: LiteralKindArray, Array: items}
}
