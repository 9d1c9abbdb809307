package vm

import (
	"strconv"
)

// Kind distinguishes the two value types.
type Kind uint8

const (
	KindNumber Kind = iota
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Value is either a signed 64-bit number or a text string. Values are
// immutable and compared with ==. The zero Value is Number(0).
type Value struct {
	kind Kind
	num  int64
	text string
}

// Number returns a number value.
func Number(n int64) Value {
	return Value{kind: KindNumber, num: n}
}

// Text returns a text value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Zero is the default produced by every ill-formed operation.
var Zero = Number(0)

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNumber returns true if v is a number.
func (v Value) IsNumber() bool { return v.kind == KindNumber }

// IsText returns true if v is text.
func (v Value) IsText() bool { return v.kind == KindText }

// Int returns the number payload; ok is false for text.
func (v Value) Int() (n int64, ok bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the text payload; ok is false for numbers.
func (v Value) Str() (s string, ok bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// Truthy is true only for a nonzero number.
func (v Value) Truthy() bool {
	return v.kind == KindNumber && v.num != 0
}

// String renders the value the way say prints it: numbers in canonical
// decimal, text as is.
func (v Value) String() string {
	if v.kind == KindText {
		return v.text
	}
	return strconv.FormatInt(v.num, 10)
}

// GoString renders the value as a literal, quoting text.
func (v Value) GoString() string {
	if v.kind == KindText {
		return strconv.Quote(v.text)
	}
	return strconv.FormatInt(v.num, 10)
}
