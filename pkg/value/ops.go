package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxInt and MinInt bound the цел range.
const (
	MaxInt = math.MaxInt32
	MinInt = math.MinInt32
)

var (
	ErrDivisionByZero = errors.New("деление на ноль")
	ErrIntOverflow    = errors.New("целочисленное переполнение")
)

// OpError reports an operator applied to operands it is not defined for.
type OpError struct {
	Op          string
	Left, Right Type
	Unary       bool
}

func (e *OpError) Error() string {
	if e.Unary {
		return fmt.Sprintf("операция \"%s\" не определена для %s", e.Op, e.Right)
	}
	return fmt.Sprintf("операция \"%s\" не определена для %s и %s", e.Op, e.Left, e.Right)
}

// TypeError reports a value that cannot be stored where type Want is required.
type TypeError struct {
	Want, Got Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("несовпадение типов: нужно %s, получено %s", e.Want, e.Got)
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// Coerce converts v for storage under type want. Besides an exact match it
// accepts the widenings цел→вещ and сим→лит.
func Coerce(want Type, v Value) (Value, error) {
	if v.Type == want {
		return v, nil
	}
	if !want.Table && !v.Type.Table {
		switch {
		case want.Kind == KindReal && v.Type.Kind == KindInt:
			return Real(float64(v.I)), nil
		case want.Kind == KindString && v.Type.Kind == KindChar:
			return String(string(v.C)), nil
		}
	}
	return Value{}, &TypeError{Want: want, Got: v.Type}
}

func checkInt(n int64) (Value, error) {
	if n > MaxInt || n < MinInt {
		return Value{}, ErrIntOverflow
	}
	return Int(n), nil
}

// Parse converts one piece of input text to a value of kind k.
func Parse(k Kind, text string) (Value, error) {
	switch k {
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("\"%s\" не является целым числом", text)
		}
		return checkInt(n)
	case KindReal:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return Value{}, fmt.Errorf("\"%s\" не является вещественным числом", text)
		}
		return Real(f), nil
	case KindString:
		return String(text), nil
	case KindChar:
		if utf8.RuneCountInString(text) != 1 {
			return Value{}, fmt.Errorf("\"%s\" не является символом", text)
		}
		r, _ := utf8.DecodeRuneInString(text)
		return Char(r), nil
	case KindBool:
		switch strings.TrimSpace(text) {
		case "да":
			return Bool(true), nil
		case "нет":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("\"%s\" не является логическим значением", text)
	}
	return Value{}, fmt.Errorf("нельзя ввести значение типа %s", k)
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// Unary applies a prefix operator: "+", "-" or "не".
func Unary(op string, v Value) (Value, error) {
	switch op {
	case "+":
		if v.IsNumeric() {
			return v, nil
		}
	case "-":
		if !v.Type.Table {
			switch v.Type.Kind {
			case KindInt:
				return checkInt(-v.I)
			case KindReal:
				return Real(-v.R), nil
			}
		}
	case "не":
		if v.Type == Scalar(KindBool) {
			return Bool(!v.B), nil
		}
	}
	return Value{}, &OpError{Op: op, Right: v.Type, Unary: true}
}

// Binary applies an infix operator to a and b.
func Binary(op string, a, b Value) (Value, error) {
	bad := &OpError{Op: op, Left: a.Type, Right: b.Type}
	switch op {
	case "+":
		if a.IsText() && b.IsText() {
			return String(a.Text() + b.Text()), nil
		}
		return arith(op, a, b, bad)
	case "-", "*", "/", "**":
		return arith(op, a, b, bad)
	case "=", "<>", "<", ">", "<=", ">=":
		return compare(op, a, b, bad)
	case "и", "или":
		if a.Type != Scalar(KindBool) || b.Type != Scalar(KindBool) {
			return Value{}, bad
		}
		if op == "и" {
			return Bool(a.B && b.B), nil
		}
		return Bool(a.B || b.B), nil
	}
	return Value{}, bad
}

func arith(op string, a, b Value, bad error) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return Value{}, bad
	}
	bothInt := a.Type.Kind == KindInt && b.Type.Kind == KindInt
	switch op {
	case "/":
		if b.Float() == 0 {
			return Value{}, ErrDivisionByZero
		}
		return Real(a.Float() / b.Float()), nil
	case "**":
		if bothInt && b.I >= 0 {
			return intPow(a.I, b.I)
		}
		if a.Float() == 0 && b.Float() < 0 {
			return Value{}, ErrDivisionByZero
		}
		return Real(math.Pow(a.Float(), b.Float())), nil
	}
	if bothInt {
		switch op {
		case "+":
			return checkInt(a.I + b.I)
		case "-":
			return checkInt(a.I - b.I)
		case "*":
			return checkInt(a.I * b.I)
		}
	}
	x, y := a.Float(), b.Float()
	switch op {
	case "+":
		return Real(x + y), nil
	case "-":
		return Real(x - y), nil
	default:
		return Real(x * y), nil
	}
}

func intPow(base, exp int64) (Value, error) {
	switch base {
	case 0, 1:
		if exp == 0 {
			return Int(1), nil
		}
		return Int(base), nil
	case -1:
		if exp%2 == 0 {
			return Int(1), nil
		}
		return Int(-1), nil
	}
	result := int64(1)
	for ; exp > 0; exp-- {
		result *= base
		if result > MaxInt || result < MinInt {
			return Value{}, ErrIntOverflow
		}
	}
	return Int(result), nil
}

func compare(op string, a, b Value, bad error) (Value, error) {
	var c int
	switch {
	case a.IsNumeric() && b.IsNumeric():
		if a.Type.Kind == KindInt && b.Type.Kind == KindInt {
			c = cmp3(a.I < b.I, a.I > b.I)
		} else {
			c = cmp3(a.Float() < b.Float(), a.Float() > b.Float())
		}
	case a.IsText() && b.IsText():
		c = strings.Compare(a.Text(), b.Text())
	case a.Type == Scalar(KindBool) && b.Type == Scalar(KindBool):
		if op != "=" && op != "<>" {
			return Value{}, bad
		}
		c = cmp3(!a.B && b.B, a.B && !b.B)
	default:
		return Value{}, bad
	}
	switch op {
	case "=":
		return Bool(c == 0), nil
	case "<>":
		return Bool(c != 0), nil
	case "<":
		return Bool(c < 0), nil
	case ">":
		return Bool(c > 0), nil
	case "<=":
		return Bool(c <= 0), nil
	default:
		return Bool(c >= 0), nil
	}
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}
