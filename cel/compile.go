package cel

import (
	"fmt"
	"strings"
	"time"

	"github.com/ezachrisen/sieve"
	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/overloads"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	gexpr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

var (
	// ErrUnsupported is wrapped by every term Compile cannot lower to a
	// sieve predicate.
	ErrUnsupported = errors.New("unsupported expression")

	// ErrInvalidProjection is returned for malformed projection paths.
	ErrInvalidProjection = errors.New("invalid projection")
)

// Compile parses expr and lowers it to a filter over string attribute paths.
// projections are dotted attribute paths ("address.city") copied into the
// output row of each match, in order. An empty expr yields a filter without
// predicates, which matches every object.
func Compile(expr string, projections ...string) (sieve.Filter[string], error) {
	var f sieve.Filter[string]

	for _, p := range projections {
		path, err := SplitPath(p)
		if err != nil {
			return f, err
		}
		f.Projections = append(f.Projections, path)
	}

	if strings.TrimSpace(expr) == "" {
		return f, nil
	}

	env, err := celgo.NewEnv()
	if err != nil {
		return f, errors.Wrap(err, "creating CEL environment")
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return f, errors.Wrapf(iss.Err(), "parsing %q", expr)
	}

	c := compiler{ast: ast}
	c.conjunction(ast.Expr())
	if err := c.errs.ErrorOrNil(); err != nil {
		return f, errors.Wrapf(err, "compiling %q", expr)
	}
	f.Predicates = c.predicates
	return f, nil
}

// MustCompile is like Compile but panics if the expression cannot be compiled.
// It simplifies initialising filters held in package variables and tests.
func MustCompile(expr string, projections ...string) sieve.Filter[string] {
	f, err := Compile(expr, projections...)
	if err != nil {
		panic(err)
	}
	return f
}

// SplitPath splits a dotted attribute path into its segments.
func SplitPath(p string) (sieve.Path[string], error) {
	parts := strings.Split(strings.TrimSpace(p), ".")
	for _, s := range parts {
		if s == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProjection, p)
		}
	}
	return parts, nil
}

// compiler collects the predicates of one expression along with every term
// that could not be lowered.
type compiler struct {
	ast        *celgo.Ast
	predicates []sieve.Predicate[string]
	errs       *multierror.Error
}

func (c *compiler) unsupported(e *gexpr.Expr, format string, args ...any) {
	c.errs = multierror.Append(c.errs,
		fmt.Errorf("%w at offset %d: %s", ErrUnsupported, c.offset(e), fmt.Sprintf(format, args...)))
}

func (c *compiler) offset(e *gexpr.Expr) int32 {
	si := c.ast.SourceInfo()
	if si == nil {
		return -1
	}
	off, ok := si.Positions[e.GetId()]
	if !ok {
		return -1
	}
	return off
}

func (c *compiler) add(cond sieve.Condition, path sieve.Path[string]) {
	c.predicates = append(c.predicates, sieve.NewPredicate(cond, path...))
}

// conjunction flattens nested && terms.
func (c *compiler) conjunction(e *gexpr.Expr) {
	if call := e.GetCallExpr(); call != nil && call.GetFunction() == operators.LogicalAnd {
		for _, a := range call.GetArgs() {
			c.conjunction(a)
		}
		return
	}
	c.term(e)
}

func (c *compiler) term(e *gexpr.Expr) {
	switch k := e.GetExprKind().(type) {
	case *gexpr.Expr_IdentExpr, *gexpr.Expr_SelectExpr:
		if sel := e.GetSelectExpr(); sel != nil && sel.GetTestOnly() {
			c.has(e, false)
			return
		}
		if path, ok := attributePath(e); ok {
			c.add(sieve.Eq(true), path)
			return
		}
		c.unsupported(e, "not an attribute path")
	case *gexpr.Expr_CallExpr:
		c.call(e, k.CallExpr)
	case *gexpr.Expr_ConstExpr:
		c.unsupported(e, "constant %s used as a condition", strings.TrimSpace(k.ConstExpr.String()))
	default:
		c.unsupported(e, "%T used as a condition", k)
	}
}

func (c *compiler) call(e *gexpr.Expr, call *gexpr.Expr_Call) {
	fn := call.GetFunction()
	args := call.GetArgs()

	switch fn {
	case operators.LogicalOr:
		c.unsupported(e, "|| is not supported; register one filter per alternative")
		return
	case operators.LogicalNot:
		c.not(e, args[0])
		return
	case operators.In:
		c.in(e, args[0], args[1])
		return
	}

	op, ok := comparisons[fn]
	if !ok || len(args) != 2 {
		c.unsupported(e, "function %s", strings.Trim(fn, "_"))
		return
	}

	lhs, rhs := args[0], args[1]
	if !isAttribute(lhs) && isAttribute(rhs) {
		lhs, rhs = rhs, lhs
		op = swapped[op]
	}

	if arg, isSize := sizeOf(lhs); isSize {
		c.size(e, arg, op, rhs)
		return
	}

	path, ok := attributePath(lhs)
	if !ok {
		c.unsupported(e, "comparison without an attribute path")
		return
	}

	if isNull(rhs) {
		switch op {
		case sieve.Equal:
			c.add(sieve.Null(), path)
		case sieve.NotEqual:
			c.add(sieve.NotNull(), path)
		default:
			c.unsupported(e, "%s null", op)
		}
		return
	}

	v, err := literal(rhs)
	if err != nil {
		c.unsupported(rhs, "%v", err)
		return
	}
	c.add(sieve.Condition{Op: op, Operand: v}, path)
}

// not handles !has(x), !x for bool attributes and !!x.
func (c *compiler) not(e, arg *gexpr.Expr) {
	if sel := arg.GetSelectExpr(); sel != nil && sel.GetTestOnly() {
		c.has(arg, true)
		return
	}
	if path, ok := attributePath(arg); ok {
		c.add(sieve.Eq(false), path)
		return
	}
	if inner := arg.GetCallExpr(); inner != nil && inner.GetFunction() == operators.LogicalNot {
		c.term(inner.GetArgs()[0])
		return
	}
	c.unsupported(e, "negation of a compound term")
}

func (c *compiler) has(e *gexpr.Expr, negated bool) {
	sel := e.GetSelectExpr()
	parent, ok := attributePath(sel.GetOperand())
	if !ok {
		c.unsupported(e, "has() of a non-attribute")
		return
	}
	path := append(parent, sel.GetField())
	if negated {
		c.add(sieve.Null(), path)
		return
	}
	c.add(sieve.NotNull(), path)
}

// in handles attr in [literals] and literal in attr, where attr is
// multi-valued.
func (c *compiler) in(e, elem, list *gexpr.Expr) {
	if path, ok := attributePath(elem); ok {
		l := list.GetListExpr()
		if l == nil {
			c.unsupported(list, "right side of in must be a list of literals")
			return
		}
		vals := make([]any, 0, len(l.GetElements()))
		for _, x := range l.GetElements() {
			v, err := literal(x)
			if err != nil {
				c.unsupported(x, "%v", err)
				return
			}
			vals = append(vals, v)
		}
		if len(vals) == 0 {
			c.unsupported(list, "empty list")
			return
		}
		c.add(sieve.OneOf(vals...), path)
		return
	}

	path, ok := attributePath(list)
	if !ok {
		c.unsupported(e, "in without an attribute path")
		return
	}
	v, err := literal(elem)
	if err != nil {
		c.unsupported(elem, "%v", err)
		return
	}
	c.add(sieve.Eq(v), path)
}

// size handles size(attr) compared with 0, or with 1 for >=.
func (c *compiler) size(e, arg *gexpr.Expr, op sieve.Op, rhs *gexpr.Expr) {
	path, ok := attributePath(arg)
	if !ok {
		c.unsupported(e, "size() of a non-attribute")
		return
	}
	v, err := literal(rhs)
	if err != nil {
		c.unsupported(rhs, "%v", err)
		return
	}
	n, ok := v.(int64)
	if !ok {
		c.unsupported(rhs, "size() compared with %T", v)
		return
	}
	switch {
	case n == 0 && (op == sieve.Equal || op == sieve.LessOrEqual):
		c.add(sieve.Empty(), path)
	case n == 0 && (op == sieve.NotEqual || op == sieve.Greater):
		c.add(sieve.NotEmpty(), path)
	case n == 1 && (op == sieve.GreaterOrEqual):
		c.add(sieve.NotEmpty(), path)
	case n == 1 && (op == sieve.Less):
		c.add(sieve.Empty(), path)
	default:
		c.unsupported(e, "size() %s %d; only emptiness tests are supported", op, n)
	}
}

var comparisons = map[string]sieve.Op{
	operators.Equals:        sieve.Equal,
	operators.NotEquals:     sieve.NotEqual,
	operators.Less:          sieve.Less,
	operators.LessEquals:    sieve.LessOrEqual,
	operators.Greater:       sieve.Greater,
	operators.GreaterEquals: sieve.GreaterOrEqual,
}

// swapped maps an operator to the one that holds with the operands exchanged.
var swapped = map[sieve.Op]sieve.Op{
	sieve.Equal:          sieve.Equal,
	sieve.NotEqual:       sieve.NotEqual,
	sieve.Less:           sieve.Greater,
	sieve.LessOrEqual:    sieve.GreaterOrEqual,
	sieve.Greater:        sieve.Less,
	sieve.GreaterOrEqual: sieve.LessOrEqual,
}

// attributePath returns the path of a chain of identifiers, field selections
// and constant string indexes.
func attributePath(e *gexpr.Expr) (sieve.Path[string], bool) {
	switch k := e.GetExprKind().(type) {
	case *gexpr.Expr_IdentExpr:
		return sieve.Path[string]{k.IdentExpr.GetName()}, true
	case *gexpr.Expr_SelectExpr:
		if k.SelectExpr.GetTestOnly() {
			return nil, false
		}
		p, ok := attributePath(k.SelectExpr.GetOperand())
		if !ok {
			return nil, false
		}
		return append(p, k.SelectExpr.GetField()), true
	case *gexpr.Expr_CallExpr:
		call := k.CallExpr
		if call.GetFunction() != operators.Index || len(call.GetArgs()) != 2 {
			return nil, false
		}
		p, ok := attributePath(call.GetArgs()[0])
		if !ok {
			return nil, false
		}
		key := call.GetArgs()[1].GetConstExpr()
		if key == nil {
			return nil, false
		}
		s, ok := key.GetConstantKind().(*gexpr.Constant_StringValue)
		if !ok {
			return nil, false
		}
		return append(p, s.StringValue), true
	}
	return nil, false
}

// isAttribute reports whether e is an attribute path or the size of one.
func isAttribute(e *gexpr.Expr) bool {
	if _, ok := attributePath(e); ok {
		return true
	}
	_, ok := sizeOf(e)
	return ok
}

// sizeOf returns the argument of size(x) or x.size().
func sizeOf(e *gexpr.Expr) (*gexpr.Expr, bool) {
	call := e.GetCallExpr()
	if call == nil || call.GetFunction() != overloads.Size {
		return nil, false
	}
	switch {
	case call.GetTarget() != nil && len(call.GetArgs()) == 0:
		return call.GetTarget(), true
	case call.GetTarget() == nil && len(call.GetArgs()) == 1:
		return call.GetArgs()[0], true
	}
	return nil, false
}

func isNull(e *gexpr.Expr) bool {
	k := e.GetConstExpr()
	if k == nil {
		return false
	}
	_, ok := k.GetConstantKind().(*gexpr.Constant_NullValue)
	return ok
}

// literal converts a constant expression to the Go value predicates compare
// against. timestamp("...") and duration("...") with constant strings are
// folded to time.Time and time.Duration.
func literal(e *gexpr.Expr) (any, error) {
	switch k := e.GetExprKind().(type) {
	case *gexpr.Expr_ConstExpr:
		switch v := k.ConstExpr.GetConstantKind().(type) {
		case *gexpr.Constant_BoolValue:
			return v.BoolValue, nil
		case *gexpr.Constant_Int64Value:
			return v.Int64Value, nil
		case *gexpr.Constant_Uint64Value:
			return v.Uint64Value, nil
		case *gexpr.Constant_DoubleValue:
			return v.DoubleValue, nil
		case *gexpr.Constant_StringValue:
			return v.StringValue, nil
		case *gexpr.Constant_NullValue:
			return nil, fmt.Errorf("null is only supported with == and !=")
		default:
			return nil, fmt.Errorf("constant of type %T", v)
		}

	case *gexpr.Expr_CallExpr:
		call := k.CallExpr
		args := call.GetArgs()
		switch {
		case call.GetFunction() == operators.Negate && len(args) == 1:
			v, err := literal(args[0])
			if err != nil {
				return nil, err
			}
			switch n := v.(type) {
			case int64:
				return -n, nil
			case float64:
				return -n, nil
			}
			return nil, fmt.Errorf("negation of %T", v)

		case call.GetFunction() == overloads.TypeConvertTimestamp && len(args) == 1:
			s, err := stringLiteral(args[0])
			if err != nil {
				return nil, err
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("timestamp %q: %w", s, err)
			}
			return t, nil

		case call.GetFunction() == overloads.TypeConvertDuration && len(args) == 1:
			s, err := stringLiteral(args[0])
			if err != nil {
				return nil, err
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("duration %q: %w", s, err)
			}
			return d, nil
		}
		return nil, fmt.Errorf("function %s is not a literal", strings.Trim(call.GetFunction(), "_"))
	}
	return nil, fmt.Errorf("operand is not a literal")
}

func stringLiteral(e *gexpr.Expr) (string, error) {
	k := e.GetConstExpr()
	if k == nil {
		return "", fmt.Errorf("expected a string constant")
	}
	s, ok := k.GetConstantKind().(*gexpr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected a string constant")
	}
	return s.StringValue, nil
}
