package sieve

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Op identifies the test a predicate applies to an attribute value.
type Op int

const (
	Equal Op = iota
	NotEqual
	Less
	LessOrEqual
	Greater
	GreaterOrEqual
	In

	IsNull
	IsNotNull
	IsEmpty
	IsNotEmpty
)

func (o Op) String() string {
	switch o {
	case Equal:
		return "="
	case NotEqual:
		return "!="
	case Less:
		return "<"
	case LessOrEqual:
		return "<="
	case Greater:
		return ">"
	case GreaterOrEqual:
		return ">="
	case In:
		return "in"
	case IsNull:
		return "is null"
	case IsNotNull:
		return "is not null"
	case IsEmpty:
		return "is empty"
	case IsNotEmpty:
		return "is not empty"
	default:
		return "unknown"
	}
}

// RequiresComparable reports whether predicates of this kind may only be
// attached to comparable attributes.
func (o Op) RequiresComparable() bool {
	return o >= Equal && o <= In
}

// Value is an attribute value handed to a node during matching.
// The zero Value is absent: the attribute did not resolve on the object.
type Value struct {
	Val     any
	Present bool
}

// ValueOf returns a present Value holding v.
func ValueOf(v any) Value {
	return Value{Val: v, Present: true}
}

// null reports whether v is absent or holds a nil.
func (v Value) null() bool {
	return !v.Present || isNil(v.Val)
}

// Condition is the test of one predicate. Comparisons use Operand, In uses
// Operands, and the null and emptiness tests use neither.
type Condition struct {
	Op       Op
	Operand  any
	Operands []any
}

func Eq(v any) Condition        { return Condition{Op: Equal, Operand: v} }
func Ne(v any) Condition        { return Condition{Op: NotEqual, Operand: v} }
func Lt(v any) Condition        { return Condition{Op: Less, Operand: v} }
func Le(v any) Condition        { return Condition{Op: LessOrEqual, Operand: v} }
func Gt(v any) Condition        { return Condition{Op: Greater, Operand: v} }
func Ge(v any) Condition        { return Condition{Op: GreaterOrEqual, Operand: v} }
func OneOf(vs ...any) Condition { return Condition{Op: In, Operands: vs} }
func Null() Condition           { return Condition{Op: IsNull} }
func NotNull() Condition        { return Condition{Op: IsNotNull} }
func Empty() Condition          { return Condition{Op: IsEmpty} }
func NotEmpty() Condition       { return Condition{Op: IsNotEmpty} }

// Validate checks that the condition carries the operands its kind needs.
func (c Condition) Validate() error {
	switch c.Op {
	case Equal, NotEqual, Less, LessOrEqual, Greater, GreaterOrEqual:
		if c.Operand == nil {
			return fmt.Errorf("%w: %s requires an operand", ErrInvalidCondition, c.Op)
		}
		if len(c.Operands) > 0 {
			return fmt.Errorf("%w: %s takes a single operand", ErrInvalidCondition, c.Op)
		}
	case In:
		if len(c.Operands) == 0 {
			return fmt.Errorf("%w: in requires at least one operand", ErrInvalidCondition)
		}
		if c.Operand != nil {
			return fmt.Errorf("%w: in takes a list of operands", ErrInvalidCondition)
		}
	case IsNull, IsNotNull, IsEmpty, IsNotEmpty:
		if c.Operand != nil || len(c.Operands) > 0 {
			return fmt.Errorf("%w: %s takes no operand", ErrInvalidCondition, c.Op)
		}
	default:
		return fmt.Errorf("%w: unknown operator %d", ErrInvalidCondition, int(c.Op))
	}
	return nil
}

func (c Condition) String() string {
	switch c.Op {
	case In:
		s := make([]string, len(c.Operands))
		for i := range c.Operands {
			s[i] = fmt.Sprintf("%#v", c.Operands[i])
		}
		return "in (" + strings.Join(s, ", ") + ")"
	case IsNull, IsNotNull, IsEmpty, IsNotEmpty:
		return c.Op.String()
	default:
		return fmt.Sprintf("%s %#v", c.Op, c.Operand)
	}
}

// key identifies conditions that always produce the same outcome, so that a
// predicate set evaluates them once for all subscribers. Each operand is
// quoted, so no operand can spill into the next.
func (c Condition) key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", c.Op)
	if c.Operand != nil {
		fmt.Fprintf(&b, "|%q:%q", fmt.Sprintf("%T", c.Operand), fmt.Sprint(c.Operand))
	}
	for _, o := range c.Operands {
		fmt.Fprintf(&b, ",%q:%q", fmt.Sprintf("%T", o), fmt.Sprint(o))
	}
	return b.String()
}

// Match evaluates the condition against v. It never fails: values that cannot
// be compared with the operand simply do not match.
func (c Condition) Match(v Value) bool {
	switch c.Op {
	case IsNull:
		return v.null()
	case IsNotNull:
		return !v.null()
	case IsEmpty:
		return isEmpty(v)
	case IsNotEmpty:
		return !isEmpty(v)
	}

	if v.null() {
		return false
	}

	switch c.Op {
	case In:
		for _, o := range c.Operands {
			if r, _, ok := compareValues(v.Val, o); ok && r == 0 {
				return true
			}
		}
		return false
	case Equal:
		r, _, ok := compareValues(v.Val, c.Operand)
		return ok && r == 0
	case NotEqual:
		r, _, ok := compareValues(v.Val, c.Operand)
		return ok && r != 0
	}

	r, ordered, ok := compareValues(v.Val, c.Operand)
	if !ok || !ordered {
		return false
	}
	switch c.Op {
	case Less:
		return r < 0
	case LessOrEqual:
		return r <= 0
	case Greater:
		return r > 0
	case GreaterOrEqual:
		return r >= 0
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func isEmpty(v Value) bool {
	if v.null() {
		return true
	}
	if l, ok := v.Val.(interface{ Len() int }); ok {
		return l.Len() == 0
	}
	rv := reflect.ValueOf(v.Val)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

// compareValues compares a with b. ordered is false for values that only
// support equality (bools); ok is false when the values are not comparable
// with each other at all.
func compareValues(a, b any) (r int, ordered bool, ok bool) {
	if ta, isTime := a.(time.Time); isTime {
		tb, isTime := b.(time.Time)
		if !isTime {
			return 0, false, false
		}
		return ta.Compare(tb), true, true
	}

	if na, isNum := asNumber(a); isNum {
		nb, isNum := asNumber(b)
		if !isNum {
			return 0, false, false
		}
		return na.compare(nb), true, true
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case ra.Kind() == reflect.String && rb.Kind() == reflect.String:
		return strings.Compare(ra.String(), rb.String()), true, true
	case ra.Kind() == reflect.Bool && rb.Kind() == reflect.Bool:
		if ra.Bool() == rb.Bool() {
			return 0, false, true
		}
		return 1, false, true
	}
	return 0, false, false
}

// number holds any Go numeric value; integers keep full precision when both
// sides are integers.
type number struct {
	i     int64
	f     float64
	isInt bool
}

func (n number) compare(o number) int {
	if n.isInt && o.isInt {
		return cmp.Compare(n.i, o.i)
	}
	return cmp.Compare(n.float(), o.float())
}

func (n number) float() float64 {
	if n.isInt {
		return float64(n.i)
	}
	return n.f
}

func asNumber(v any) (number, bool) {
	if jn, ok := v.(json.Number); ok {
		if i, err := jn.Int64(); err == nil {
			return number{i: i, isInt: true}, true
		}
		if f, err := jn.Float64(); err == nil {
			return number{f: f}, true
		}
		return number{}, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{i: rv.Int(), isInt: true}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return number{f: float64(u)}, true
		}
		return number{i: int64(u), isInt: true}, true
	case reflect.Float32, reflect.Float64:
		return number{f: rv.Float()}, true
	}
	return number{}, false
}
