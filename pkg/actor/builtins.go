package actor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/chazu/kumir/pkg/value"
)

var (
	errNegativeRoot = errors.New("корень из отрицательного числа")
	errLogDomain    = errors.New("логарифм определён только для положительных чисел")
	errArcDomain    = errors.New("аргумент должен лежать в диапазоне [-1, 1]")
	errTanDomain    = errors.New("функция не определена в этой точке")
)

type builtins struct {
	funcs []*Func
}

// NewBuiltins creates the actor holding the standard math, string and
// conversion functions. It is loaded implicitly by every machine.
func NewBuiltins() Actor {
	b := &builtins{}
	b.funcs = append(b.funcs, mathFuncs()...)
	b.funcs = append(b.funcs, textFuncs()...)
	return b
}

func (b *builtins) Name() string { return BuiltinsName }

func (b *builtins) Constants() map[string]value.Value {
	return map[string]value.Value{
		"МАКСЦЕЛ": value.Int(value.MaxInt),
		"МАКСВЕЩ": value.Real(math.MaxFloat64),
	}
}

func (b *builtins) Functions() []*Func { return b.funcs }

// finite checks a float result for overflow.
func finite(x float64) (value.Value, error) {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return value.Value{}, errors.New("вещественное переполнение")
	}
	return value.Real(x), nil
}

func integer(n int64) (value.Value, error) {
	if n > value.MaxInt || n < value.MinInt {
		return value.Value{}, value.ErrIntOverflow
	}
	return value.Int(n), nil
}

func real1(f func(float64) (float64, error)) NativeFunc {
	return func(_ *Context, args []value.Value) (value.Value, error) {
		x, err := f(args[0].R)
		if err != nil {
			return value.Value{}, err
		}
		return finite(x)
	}
}

func pure(f func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) { return f(x), nil }
}

// floorDiv and floorMod round the quotient toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - b*floorDiv(a, b)
}

func mathFuncs() []*Func {
	r1 := params(tReal)
	r2 := params(tReal, tReal)
	i1 := params(tInt)
	i2 := params(tInt, tInt)

	return []*Func{
		fn("sqrt", tReal, r1, "квадратный корень", real1(func(x float64) (float64, error) {
			if x < 0 {
				return 0, errNegativeRoot
			}
			return math.Sqrt(x), nil
		})),
		fn("abs", tReal, r1, "модуль вещественного числа", real1(pure(math.Abs))),
		fn("iabs", tInt, i1, "модуль целого числа", func(_ *Context, a []value.Value) (value.Value, error) {
			if a[0].I < 0 {
				return integer(-a[0].I)
			}
			return a[0], nil
		}),
		fn("sign", tInt, r1, "знак числа: -1, 0 или 1", func(_ *Context, a []value.Value) (value.Value, error) {
			switch {
			case a[0].R > 0:
				return value.Int(1), nil
			case a[0].R < 0:
				return value.Int(-1), nil
			}
			return value.Int(0), nil
		}),
		fn("sin", tReal, r1, "синус", real1(pure(math.Sin))),
		fn("cos", tReal, r1, "косинус", real1(pure(math.Cos))),
		fn("tg", tReal, r1, "тангенс", real1(func(x float64) (float64, error) {
			if math.Cos(x) == 0 {
				return 0, errTanDomain
			}
			return math.Tan(x), nil
		})),
		fn("ctg", tReal, r1, "котангенс", real1(func(x float64) (float64, error) {
			s := math.Sin(x)
			if s == 0 {
				return 0, errTanDomain
			}
			return math.Cos(x) / s, nil
		})),
		fn("arcsin", tReal, r1, "арксинус", real1(func(x float64) (float64, error) {
			if x < -1 || x > 1 {
				return 0, errArcDomain
			}
			return math.Asin(x), nil
		})),
		fn("arccos", tReal, r1, "арккосинус", real1(func(x float64) (float64, error) {
			if x < -1 || x > 1 {
				return 0, errArcDomain
			}
			return math.Acos(x), nil
		})),
		fn("arctg", tReal, r1, "арктангенс", real1(pure(math.Atan))),
		fn("arcctg", tReal, r1, "арккотангенс", real1(pure(func(x float64) float64 {
			return math.Pi/2 - math.Atan(x)
		}))),
		fn("ln", tReal, r1, "натуральный логарифм", real1(func(x float64) (float64, error) {
			if x <= 0 {
				return 0, errLogDomain
			}
			return math.Log(x), nil
		})),
		fn("lg", tReal, r1, "десятичный логарифм", real1(func(x float64) (float64, error) {
			if x <= 0 {
				return 0, errLogDomain
			}
			return math.Log10(x), nil
		})),
		fn("exp", tReal, r1, "экспонента", real1(pure(math.Exp))),
		fn("min", tReal, r2, "минимум из двух вещественных", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.Real(math.Min(a[0].R, a[1].R)), nil
		}),
		fn("max", tReal, r2, "максимум из двух вещественных", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.Real(math.Max(a[0].R, a[1].R)), nil
		}),
		fn("imin", tInt, i2, "минимум из двух целых", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.Int(min(a[0].I, a[1].I)), nil
		}),
		fn("imax", tInt, i2, "максимум из двух целых", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.Int(max(a[0].I, a[1].I)), nil
		}),
		fn("div", tInt, i2, "целая часть от деления", func(_ *Context, a []value.Value) (value.Value, error) {
			if a[1].I == 0 {
				return value.Value{}, value.ErrDivisionByZero
			}
			return integer(floorDiv(a[0].I, a[1].I))
		}),
		fn("mod", tInt, i2, "остаток от деления", func(_ *Context, a []value.Value) (value.Value, error) {
			if a[1].I == 0 {
				return value.Value{}, value.ErrDivisionByZero
			}
			return value.Int(floorMod(a[0].I, a[1].I)), nil
		}),
		fn("int", tInt, r1, "целая часть числа", func(_ *Context, a []value.Value) (value.Value, error) {
			f := math.Floor(a[0].R)
			if f > value.MaxInt || f < value.MinInt || math.IsNaN(f) {
				return value.Value{}, value.ErrIntOverflow
			}
			return value.Int(int64(f)), nil
		}),
		fn("rnd", tReal, r1, "случайное вещественное из [0, x)", func(c *Context, a []value.Value) (value.Value, error) {
			return value.Real(c.Rand.Float64() * a[0].R), nil
		}),
		fn("rand", tReal, r2, "случайное вещественное из [a, b]", func(c *Context, a []value.Value) (value.Value, error) {
			lo, hi := a[0].R, a[1].R
			if lo > hi {
				return value.Value{}, fmt.Errorf("неверный диапазон [%s, %s]", value.FormatReal(lo), value.FormatReal(hi))
			}
			return value.Real(lo + c.Rand.Float64()*(hi-lo)), nil
		}),
		fn("irnd", tInt, i1, "случайное целое из [1, x]", func(c *Context, a []value.Value) (value.Value, error) {
			if a[0].I < 1 {
				return value.Value{}, fmt.Errorf("аргумент должен быть положительным, получено %d", a[0].I)
			}
			return value.Int(1 + c.Rand.Int64N(a[0].I)), nil
		}),
		fn("irand", tInt, i2, "случайное целое из [a, b]", func(c *Context, a []value.Value) (value.Value, error) {
			lo, hi := a[0].I, a[1].I
			if lo > hi {
				return value.Value{}, fmt.Errorf("неверный диапазон [%d, %d]", lo, hi)
			}
			return value.Int(lo + c.Rand.Int64N(hi-lo+1)), nil
		}),
		fn("время", tInt, nil, "число сотых долей секунды с полуночи", func(c *Context, _ []value.Value) (value.Value, error) {
			t := c.Now()
			y, m, d := t.Date()
			midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
			return value.Int(t.Sub(midnight).Milliseconds() / 10), nil
		}),
	}
}

func textFuncs() []*Func {
	return []*Func{
		fn("длин", tInt, params(tString), "длина строки в символах", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.Int(int64(utf8.RuneCountInString(a[0].S))), nil
		}),
		fn("цел_в_лит", tString, params(tInt), "запись целого числа строкой", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.String(strconv.FormatInt(a[0].I, 10)), nil
		}),
		fn("вещ_в_лит", tString, params(tReal), "запись вещественного числа строкой", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.String(value.FormatReal(a[0].R)), nil
		}),
		fn("лит_в_цел", tInt, params(tString), "разбор целого числа", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.Parse(value.KindInt, a[0].S)
		}),
		fn("лит_в_вещ", tReal, params(tString), "разбор вещественного числа", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.Parse(value.KindReal, a[0].S)
		}),
		fn("юникод", tInt, params(tChar), "код символа в Юникоде", func(_ *Context, a []value.Value) (value.Value, error) {
			return value.Int(int64(a[0].C)), nil
		}),
		fn("юнисимвол", tChar, params(tInt), "символ с заданным кодом Юникода", func(_ *Context, a []value.Value) (value.Value, error) {
			if a[0].I < 0 || a[0].I > utf8.MaxRune || !utf8.ValidRune(rune(a[0].I)) {
				return value.Value{}, fmt.Errorf("нет символа с кодом %d", a[0].I)
			}
			return value.Char(rune(a[0].I)), nil
		}),
		fn("код", tInt, params(tChar), "код символа в кодировке CP1251", func(_ *Context, a []value.Value) (value.Value, error) {
			b, ok := charmap.Windows1251.EncodeRune(a[0].C)
			if !ok {
				return value.Value{}, fmt.Errorf("символ '%c' отсутствует в кодировке CP1251", a[0].C)
			}
			return value.Int(int64(b)), nil
		}),
		fn("символ", tChar, params(tInt), "символ с заданным кодом CP1251", func(_ *Context, a []value.Value) (value.Value, error) {
			if a[0].I < 0 || a[0].I > 255 {
				return value.Value{}, fmt.Errorf("код %d вне диапазона 0..255", a[0].I)
			}
			r := charmap.Windows1251.DecodeByte(byte(a[0].I))
			if r == utf8.RuneError {
				return value.Value{}, fmt.Errorf("нет символа с кодом %d", a[0].I)
			}
			return value.Char(r), nil
		}),
		fn("позиция", tInt, params(tString, tString), "позиция фрагмента в строке, 0 если его нет", func(_ *Context, a []value.Value) (value.Value, error) {
			i := strings.Index(a[1].S, a[0].S)
			if i < 0 {
				return value.Int(0), nil
			}
			return value.Int(int64(utf8.RuneCountInString(a[1].S[:i]) + 1)), nil
		}),
	}
}
