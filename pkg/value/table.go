package value

import (
	"fmt"
	"strings"
)

// MaxDims is the largest number of table dimensions.
const MaxDims = 3

// Bound is an inclusive index range of one table dimension.
type Bound struct {
	Lo, Hi int64
}

// Index addresses a table cell; unused trailing dimensions are zero.
type Index [MaxDims]int64

// Table is a bounded, sparsely populated array of up to three dimensions.
// Cells that were never assigned hold no value.
type Table struct {
	Elem   Kind
	Bounds []Bound
	cells  map[Index]Value
}

// NewTable creates an empty table. It fails when the dimension count is out
// of range or a lower bound exceeds its upper bound.
func NewTable(elem Kind, bounds []Bound) (*Table, error) {
	if len(bounds) == 0 || len(bounds) > MaxDims {
		return nil, fmt.Errorf("таблица может иметь от 1 до %d измерений", MaxDims)
	}
	for _, b := range bounds {
		if b.Lo > b.Hi {
			return nil, fmt.Errorf("неверные границы таблицы [%d:%d]", b.Lo, b.Hi)
		}
	}
	b := make([]Bound, len(bounds))
	copy(b, bounds)
	return &Table{Elem: elem, Bounds: b, cells: make(map[Index]Value)}, nil
}

// Dims returns the number of dimensions.
func (t *Table) Dims() int { return len(t.Bounds) }

// SameShape reports whether o has the same dimensions and bounds as t.
func (t *Table) SameShape(o *Table) bool {
	if len(t.Bounds) != len(o.Bounds) {
		return false
	}
	for i, b := range t.Bounds {
		if o.Bounds[i] != b {
			return false
		}
	}
	return true
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	c := &Table{Elem: t.Elem, Bounds: make([]Bound, len(t.Bounds)), cells: make(map[Index]Value, len(t.cells))}
	copy(c.Bounds, t.Bounds)
	for k, v := range t.cells {
		c.cells[k] = v
	}
	return c
}

// index validates a raw index list against the table bounds.
func (t *Table) index(idx []int64) (Index, error) {
	var key Index
	if len(idx) != len(t.Bounds) {
		return key, fmt.Errorf("неверное число индексов: %d, нужно %d", len(idx), len(t.Bounds))
	}
	for i, n := range idx {
		b := t.Bounds[i]
		if n < b.Lo || n > b.Hi {
			return key, fmt.Errorf("индекс %d вне границ [%d:%d]", n, b.Lo, b.Hi)
		}
		key[i] = n
	}
	return key, nil
}

// Get returns the cell at idx. The boolean is false when the cell is unset.
func (t *Table) Get(idx []int64) (Value, bool, error) {
	key, err := t.index(idx)
	if err != nil {
		return Value{}, false, err
	}
	v, ok := t.cells[key]
	return v, ok, nil
}

// Set stores v at idx after converting it to the element kind.
func (t *Table) Set(idx []int64, v Value) error {
	key, err := t.index(idx)
	if err != nil {
		return err
	}
	conv, err := Coerce(Scalar(t.Elem), v)
	if err != nil {
		return err
	}
	t.cells[key] = conv
	return nil
}

// Len returns the number of assigned cells.
func (t *Table) Len() int { return len(t.cells) }

func (t *Table) String() string {
	parts := make([]string, len(t.Bounds))
	for i, b := range t.Bounds {
		parts[i] = fmt.Sprintf("%d:%d", b.Lo, b.Hi)
	}
	return fmt.Sprintf("%s таб[%s]", t.Elem, strings.Join(parts, ","))
}
