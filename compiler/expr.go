package compiler

import (
	"strconv"
	"strings"

	"github.com/chazu/kumir/pkg/value"
)

// ---------------------------------------------------------------------------
// Expressions: infix tokens to reverse-Polish order
// ---------------------------------------------------------------------------

// Operator priorities. All binary operators are left-associative.
var binaryPriority = map[string]int{
	"или": 0,
	"и":   0,
	"=":   2,
	"<>":  2,
	"<":   2,
	">":   2,
	"<=":  2,
	">=":  2,
	"+":   3,
	"-":   3,
	"*":   4,
	"/":   4,
	"**":  5,
}

const (
	notPriority   = 1
	unaryPriority = 6
)

func priority(op *Operator) int {
	if op.Unary {
		if op.Op == "не" {
			return notPriority
		}
		return unaryPriority
	}
	return binaryPriority[op.Op]
}

// infixKind classifies collected infix elements.
type infixKind int

const (
	infixNone infixKind = iota
	infixOperand
	infixOperator
	infixLParen
	infixRParen
)

type infixItem struct {
	kind infixKind
	item ExprItem
}

// parseExpr reads an expression and returns it in reverse-Polish order. It
// stops at the first token that cannot continue the expression; a ")" with
// no matching "(" also ends it, which lets call arguments be parsed in place.
func (p *Parser) parseExpr() (Expr, error) {
	var infix []infixItem
	prev := infixNone
	depth := 0

loop:
	for {
		tok := p.curToken
		switch {
		case tok.Type == TokenName:
			if prev == infixOperand || prev == infixRParen {
				return nil, p.errorf("пропущена операция")
			}
			item, err := p.parseNameOperand()
			if err != nil {
				return nil, err
			}
			infix = append(infix, infixItem{kind: infixOperand, item: item})
			prev = infixOperand
			continue

		case tok.Type == TokenOperator:
			op := &Operator{Op: tok.Literal}
			if prev == infixNone || prev == infixOperator || prev == infixLParen {
				if op.Op != "+" && op.Op != "-" && op.Op != "не" {
					return nil, p.errorf("пропущен операнд перед \"%s\"", op.Op)
				}
				op.Unary = true
			} else if op.Op == "не" {
				return nil, p.errorf("пропущена операция перед \"не\"")
			}
			infix = append(infix, infixItem{kind: infixOperator, item: op})
			prev = infixOperator

		case tok.Type == TokenLParen:
			if prev == infixOperand || prev == infixRParen {
				return nil, p.errorf("пропущена операция перед \"(\"")
			}
			depth++
			infix = append(infix, infixItem{kind: infixLParen})
			prev = infixLParen

		case tok.Type == TokenRParen:
			if depth == 0 {
				break loop
			}
			if prev != infixOperand && prev != infixRParen {
				return nil, p.errorf("пустые скобки или пропущен операнд")
			}
			depth--
			infix = append(infix, infixItem{kind: infixRParen})
			prev = infixRParen

		default:
			c, ok, err := p.literal()
			if err != nil {
				return nil, err
			}
			if !ok {
				break loop
			}
			if prev == infixOperand || prev == infixRParen {
				return nil, p.errorf("пропущена операция")
			}
			infix = append(infix, infixItem{kind: infixOperand, item: c})
			prev = infixOperand
		}
		p.nextToken()
	}

	switch {
	case prev == infixNone:
		return nil, p.errorf("нет выражения")
	case prev == infixOperator || prev == infixLParen:
		return nil, p.errorf("выражение не закончено")
	case depth != 0:
		return nil, p.errorf("не хватает закрывающей скобки")
	}
	return toPostfix(infix), nil
}

// toPostfix is the shunting-yard step over validated infix items.
func toPostfix(infix []infixItem) Expr {
	out := make(Expr, 0, len(infix))
	var stack []infixItem
	for _, it := range infix {
		switch it.kind {
		case infixOperand:
			out = append(out, it.item)
		case infixLParen:
			stack = append(stack, it)
		case infixRParen:
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.kind == infixLParen {
					break
				}
				out = append(out, top.item)
			}
		case infixOperator:
			op := it.item.(*Operator)
			if !op.Unary {
				pr := priority(op)
				for len(stack) > 0 {
					top := stack[len(stack)-1]
					if top.kind != infixOperator || priority(top.item.(*Operator)) < pr {
						break
					}
					out = append(out, top.item)
					stack = stack[:len(stack)-1]
				}
			}
			stack = append(stack, it)
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, stack[i].item)
	}
	return out
}

// literal converts the current token to a constant when it is one.
func (p *Parser) literal() (*Const, bool, error) {
	tok := p.curToken
	switch tok.Type {
	case TokenNumber:
		if strings.Contains(tok.Literal, ".") {
			f, err := strconv.ParseFloat(tok.Literal, 64)
			if err != nil {
				return nil, false, p.errorf("неверное число")
			}
			return &Const{Value: value.Real(f)}, true, nil
		}
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil || n > value.MaxInt {
			return nil, false, p.errorf("слишком большое целое число")
		}
		return &Const{Value: value.Int(n)}, true, nil
	case TokenString:
		return &Const{Value: value.String(tok.Literal)}, true, nil
	case TokenChar:
		return &Const{Value: value.Char([]rune(tok.Literal)[0])}, true, nil
	case TokenKeyword:
		switch tok.Literal {
		case "да":
			return &Const{Value: value.Bool(true)}, true, nil
		case "нет":
			return &Const{Value: value.Bool(false)}, true, nil
		case "нс":
			return &Const{Value: value.String("\n")}, true, nil
		}
	}
	return nil, false, nil
}

// parseNameOperand parses a name used as an operand: a variable, a call,
// an element access or a substring. It leaves the current token after the
// operand.
func (p *Parser) parseNameOperand() (ExprItem, error) {
	name := p.curToken.Literal
	p.nextToken()

	switch {
	case p.curTokenIs(TokenLParen):
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &Call{Name: name, Args: args}, nil

	case p.curTokenIs(TokenLBracket):
		p.nextToken()
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.curTokenIs(TokenColon) {
			p.nextToken()
			second, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(TokenRBracket, "нет \"]\""); err != nil {
				return nil, err
			}
			return &Slice{Name: name, From: first, To: second}, nil
		}
		idx, err := p.parseIndexTail(first)
		if err != nil {
			return nil, err
		}
		return &GetItem{Name: name, Indexes: idx}, nil
	}
	return &NameRef{Name: name}, nil
}

// parseIndexes parses "[e, e, ...]" starting at "[".
func (p *Parser) parseIndexes() ([]Expr, error) {
	p.nextToken() // [
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return p.parseIndexTail(first)
}

// parseIndexTail parses the rest of an index list after its first element.
func (p *Parser) parseIndexTail(first Expr) ([]Expr, error) {
	idx := []Expr{first}
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		idx = append(idx, e)
	}
	if len(idx) > value.MaxDims {
		return nil, p.errorf("слишком много индексов")
	}
	if err := p.expect(TokenRBracket, "нет \"]\""); err != nil {
		return nil, err
	}
	return idx, nil
}

// parseArgs parses "(e, e, ...)" starting at "(".
func (p *Parser) parseArgs() ([]Expr, error) {
	p.nextToken() // (
	if p.curTokenIs(TokenRParen) {
		return nil, p.errorf("пустые скобки")
	}
	var args []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		if err := p.expect(TokenRParen, "нет закрывающей скобки"); err != nil {
			return nil, err
		}
		return args, nil
	}
}
