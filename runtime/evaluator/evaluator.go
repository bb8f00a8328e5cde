package evaluator

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/viant/parsly"
	"github.com/viant/toolbox"
)

// ErrInvalidExpression is returned for syntax errors and incomparable operands.
var ErrInvalidExpression = errors.New("invalid condition expression")

// Expression is a compiled condition. Only comparisons, boolean operators,
// literals, len() and dotted lookups into the evaluation context are
// supported; nothing else can be expressed.
type Expression struct {
	source string
	root   node
}

// String returns the expression source.
func (e *Expression) String() string { return e.source }

// Compile parses expr into an Expression.
func Compile(expr string) (*Expression, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	p := &parser{cursor: parsly.NewCursor("", []byte(expr), 0)}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	p.cursor.MatchOne(whitespaceToken)
	if p.cursor.HasMore() {
		return nil, fmt.Errorf("%w: %q: unexpected input at %d", ErrInvalidExpression, expr, p.cursor.Pos)
	}
	return &Expression{source: expr, root: root}, nil
}

// Evaluate compiles and evaluates expr against variables.
func Evaluate(expr string, variables map[string]interface{}) (bool, error) {
	compiled, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return compiled.Evaluate(variables)
}

// Evaluate evaluates the expression against variables.
func (e *Expression) Evaluate(variables map[string]interface{}) (bool, error) {
	value, err := e.root.eval(variables)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, e.source, err)
	}
	return truthy(value), nil
}

type parser struct {
	cursor *parsly.Cursor
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cursor.MatchAfterOptional(whitespaceToken, orToken).Code == orCode {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logical{and: false, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cursor.MatchAfterOptional(whitespaceToken, andToken).Code == andCode {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &logical{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	pos := p.cursor.Pos
	if p.cursor.MatchAfterOptional(whitespaceToken, neToken).Code == neCode {
		p.cursor.Pos = pos
		return nil, p.cursor.NewError(operandTokens...)
	}
	if p.cursor.MatchAfterOptional(whitespaceToken, notToken).Code == notCode {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negation{operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	matched := p.cursor.MatchAfterOptional(whitespaceToken, comparisonTokens...)
	switch matched.Code {
	case eqCode, neCode, leCode, geCode, ltCode, gtCode:
	default:
		return left, nil
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &comparison{op: matched.Code, left: left, right: right}, nil
}

func (p *parser) parseOperand() (node, error) {
	matched := p.cursor.MatchAfterOptional(whitespaceToken, operandTokens...)
	switch matched.Code {
	case openParenCode:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cursor.MatchAfterOptional(whitespaceToken, closeParenToken).Code != closeParenCode {
			return nil, p.cursor.NewError(closeParenToken)
		}
		return inner, nil
	case numberCode:
		value, err := strconv.ParseFloat(matched.Text(p.cursor), 64)
		if err != nil {
			return nil, err
		}
		return &literal{value: value}, nil
	case stringCode:
		return &literal{value: unquote(matched.Text(p.cursor))}, nil
	case identifierCode:
		text := matched.Text(p.cursor)
		switch text {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null", "nil":
			return &literal{}, nil
		case "len":
			return p.parseLen()
		}
		return &lookup{path: strings.Split(text, ".")}, nil
	case parsly.EOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, p.cursor.NewError(operandTokens...)
}

func (p *parser) parseLen() (node, error) {
	if p.cursor.MatchAfterOptional(whitespaceToken, openParenToken).Code != openParenCode {
		return nil, p.cursor.NewError(openParenToken)
	}
	matched := p.cursor.MatchAfterOptional(whitespaceToken, identifierToken)
	if matched.Code != identifierCode {
		return nil, p.cursor.NewError(identifierToken)
	}
	arg := &lookup{path: strings.Split(matched.Text(p.cursor), ".")}
	if p.cursor.MatchAfterOptional(whitespaceToken, closeParenToken).Code != closeParenCode {
		return nil, p.cursor.NewError(closeParenToken)
	}
	return &length{operand: arg}, nil
}

func unquote(text string) string {
	body := text[1 : len(text)-1]
	if !strings.Contains(body, `\`) {
		return body
	}
	var sb strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
		}
		sb.WriteByte(body[i])
	}
	return sb.String()
}

type node interface {
	eval(variables map[string]interface{}) (interface{}, error)
}

type literal struct{ value interface{} }

func (l *literal) eval(map[string]interface{}) (interface{}, error) { return l.value, nil }

type lookup struct{ path []string }

func (l *lookup) eval(variables map[string]interface{}) (interface{}, error) {
	var current interface{} = variables
	for _, segment := range l.path {
		switch actual := current.(type) {
		case map[string]interface{}:
			current = actual[segment]
		case map[string]string:
			value, ok := actual[segment]
			if !ok {
				return nil, nil
			}
			current = value
		default:
			return nil, nil
		}
	}
	return current, nil
}

type length struct{ operand node }

func (l *length) eval(variables map[string]interface{}) (interface{}, error) {
	value, err := l.operand.eval(variables)
	if err != nil || value == nil {
		return float64(0), err
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return float64(rv.Len()), nil
	}
	return nil, fmt.Errorf("len() of %T", value)
}

type negation struct{ operand node }

func (n *negation) eval(variables map[string]interface{}) (interface{}, error) {
	value, err := n.operand.eval(variables)
	if err != nil {
		return nil, err
	}
	return !truthy(value), nil
}

type logical struct {
	and         bool
	left, right node
}

func (l *logical) eval(variables map[string]interface{}) (interface{}, error) {
	left, err := l.left.eval(variables)
	if err != nil {
		return nil, err
	}
	if l.and && !truthy(left) {
		return false, nil
	}
	if !l.and && truthy(left) {
		return true, nil
	}
	right, err := l.right.eval(variables)
	if err != nil {
		return nil, err
	}
	return truthy(right), nil
}

type comparison struct {
	op          int
	left, right node
}

func (c *comparison) eval(variables map[string]interface{}) (interface{}, error) {
	left, err := c.left.eval(variables)
	if err != nil {
		return nil, err
	}
	right, err := c.right.eval(variables)
	if err != nil {
		return nil, err
	}
	switch c.op {
	case eqCode:
		return equal(left, right), nil
	case neCode:
		return !equal(left, right), nil
	}
	cmp, err := order(left, right)
	if err != nil {
		return nil, err
	}
	switch c.op {
	case ltCode:
		return cmp < 0, nil
	case leCode:
		return cmp <= 0, nil
	case gtCode:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func equal(left, right interface{}) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if lb, ok := left.(bool); ok {
		rb, err := toolbox.ToBoolean(right)
		return err == nil && lb == rb
	}
	if rb, ok := right.(bool); ok {
		lb, err := toolbox.ToBoolean(left)
		return err == nil && lb == rb
	}
	if lf, ok := asNumber(left); ok {
		if rf, ok := asNumber(right); ok {
			return lf == rf
		}
	}
	return toolbox.AsString(left) == toolbox.AsString(right)
}

func order(left, right interface{}) (int, error) {
	if lf, ok := asNumber(left); ok {
		if rf, ok := asNumber(right); ok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			}
			return 0, nil
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return strings.Compare(ls, rs), nil
	}
	return 0, fmt.Errorf("cannot order %T and %T", left, right)
}

func asNumber(value interface{}) (float64, bool) {
	switch actual := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		ret, err := toolbox.ToFloat(actual)
		return ret, err == nil
	case string:
		ret, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		return ret, err == nil
	}
	return 0, false
}

func truthy(value interface{}) bool {
	switch actual := value.(type) {
	case nil:
		return false
	case bool:
		return actual
	case string:
		return actual != "" && actual != "false"
	}
	if number, ok := asNumber(value); ok {
		return number != 0
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}
