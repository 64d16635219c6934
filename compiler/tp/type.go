package tp

import (
	"tlog.app/go/errors"
)

type (
	Type int8
)

const (
	Invalid Type = iota
	Float32
	Float64
	Int8
	Int16
	Int32
	Int64
)

var names = [...]string{
	Invalid: "invalid",
	Float32: "float32",
	Float64: "float64",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
}

// All lists the valid element types.
var All = []Type{Float32, Float64, Int8, Int16, Int32, Int64}

func Parse(s string) (Type, error) {
	for i, n := range names {
		if i != int(Invalid) && n == s {
			return Type(i), nil
		}
	}

	return Invalid, errors.New("unknown element type: %q", s)
}

// Size is the size of one element in bytes.
func (t Type) Size() int {
	switch t {
	case Int8:
		return 1
	case Int16:
		return 2
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	}

	return 0
}

func (t Type) Bits() int {
	return t.Size() * 8
}

func (t Type) IsFloat() bool {
	return t == Float32 || t == Float64
}

func (t Type) IsInt() bool {
	return t >= Int8 && t <= Int64
}

func (t Type) Valid() bool {
	return t > Invalid && int(t) < len(names)
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(names) {
		return "invalid"
	}

	return names[t]
}
