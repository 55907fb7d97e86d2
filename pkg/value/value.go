// Package value implements the typed values manipulated by KuMir programs:
// scalars of the six base kinds, bounded tables of them, and the operators
// defined between them.
package value

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Kinds and types
// ---------------------------------------------------------------------------

// Kind is the base kind of a value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt          // цел
	KindReal         // вещ
	KindString       // лит
	KindChar         // сим
	KindBool         // лог
	KindFile         // файл
)

var kindNames = map[Kind]string{
	KindInvalid: "?",
	KindInt:     "цел",
	KindReal:    "вещ",
	KindString:  "лит",
	KindChar:    "сим",
	KindBool:    "лог",
	KindFile:    "файл",
}

var kindByName = map[string]Kind{
	"цел":  KindInt,
	"вещ":  KindReal,
	"лит":  KindString,
	"сим":  KindChar,
	"лог":  KindBool,
	"файл": KindFile,
}

// String returns the KuMir name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "?"
}

// Type is a declared type: a base kind, optionally as a table.
type Type struct {
	Kind  Kind
	Table bool
}

// Scalar returns the scalar type of the given kind.
func Scalar(k Kind) Type { return Type{Kind: k} }

// TableOf returns the table type with elements of the given kind.
func TableOf(k Kind) Type { return Type{Kind: k, Table: true} }

// IsValid reports whether t names a real type.
func (t Type) IsValid() bool { return t.Kind != KindInvalid }

func (t Type) String() string {
	if t.Table {
		return t.Kind.String() + " таб"
	}
	return t.Kind.String()
}

// LookupType maps a type word to a type. Both "цел" and the fused table
// spelling "целтаб" are accepted.
func LookupType(word string) (Type, bool) {
	if k, ok := kindByName[word]; ok {
		return Scalar(k), true
	}
	if base, ok := strings.CutSuffix(word, "таб"); ok {
		if k, ok := kindByName[base]; ok && k != KindFile {
			return TableOf(k), true
		}
	}
	return Type{}, false
}

// TypeWords returns every word that names a type.
func TypeWords() []string {
	words := []string{"цел", "вещ", "лит", "сим", "лог", "файл"}
	for _, w := range words[:5] {
		words = append(words, w+"таб")
	}
	return words
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// Handle is an open file as seen by the machine: something text can be
// written to and read from line by line.
type Handle interface {
	Name() string
	WriteString(s string) (int, error)
	ReadLine() (string, error)
	Close() error
}

// Value is a tagged KuMir value. The zero Value is the "no value" marker.
type Value struct {
	Type Type

	I int64
	R float64
	S string
	C rune
	B bool
	F Handle
	T *Table
}

// Constructors.
func Int(v int64) Value       { return Value{Type: Scalar(KindInt), I: v} }
func Real(v float64) Value    { return Value{Type: Scalar(KindReal), R: v} }
func String(v string) Value   { return Value{Type: Scalar(KindString), S: v} }
func Char(v rune) Value       { return Value{Type: Scalar(KindChar), C: v} }
func Bool(v bool) Value       { return Value{Type: Scalar(KindBool), B: v} }
func File(h Handle) Value     { return Value{Type: Scalar(KindFile), F: h} }
func TableValue(t *Table) Value {
	return Value{Type: TableOf(t.Elem), T: t}
}

// IsNone reports whether v is the "no value" marker.
func (v Value) IsNone() bool { return !v.Type.IsValid() }

// Kind returns the base kind of v.
func (v Value) Kind() Kind { return v.Type.Kind }

// IsNumeric reports whether v is цел or вещ.
func (v Value) IsNumeric() bool {
	return !v.Type.Table && (v.Type.Kind == KindInt || v.Type.Kind == KindReal)
}

// IsText reports whether v is лит or сим.
func (v Value) IsText() bool {
	return !v.Type.Table && (v.Type.Kind == KindString || v.Type.Kind == KindChar)
}

// Float returns the numeric payload of a цел or вещ value as float64.
func (v Value) Float() float64 {
	if v.Type.Kind == KindInt {
		return float64(v.I)
	}
	return v.R
}

// Text returns the textual payload of a лит or сим value.
func (v Value) Text() string {
	if v.Type.Kind == KindChar {
		return string(v.C)
	}
	return v.S
}

// Copy returns v with any table payload deep-copied, so that the result
// shares no mutable state with v.
func (v Value) Copy() Value {
	if v.Type.Table && v.T != nil {
		v.T = v.T.Clone()
	}
	return v
}

// String renders v the way the output statement prints it.
func (v Value) String() string {
	if v.Type.Table {
		return "таб"
	}
	switch v.Type.Kind {
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindReal:
		return FormatReal(v.R)
	case KindString:
		return v.S
	case KindChar:
		return string(v.C)
	case KindBool:
		if v.B {
			return "да"
		}
		return "нет"
	case KindFile:
		if v.F == nil {
			return "файл"
		}
		return v.F.Name()
	}
	return ""
}

// FormatReal formats a вещ value. Integral values keep a trailing ".0" so
// that they stay distinguishable from цел output.
func FormatReal(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
