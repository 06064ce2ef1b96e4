// Package parser implements a recursive-descent parser for NotScheme's
// fully-parenthesized S-expression grammar. Unlike a Pratt parser for an
// infix language, there is no precedence to resolve: every compound form
// is (head arg...), so parsing is purely structural.
package parser

import (
	"fmt"
	"strconv"

	"github.com/wegfawefgawefg/notscheme-go/ast"
	"github.com/wegfawefgawefg/notscheme-go/lexer"
	"github.com/wegfawefgawefg/notscheme-go/token"
)

// Error is a parse-time error carrying the source position it occurred at.
type Error struct {
	Msg  string
	Line int
	Col  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Parser consumes tokens from a Lexer and builds an ast.Program.
type Parser struct {
	l *lexer.Lexer

	curToken  token.Token
	peekToken token.Token

	errors []error
}

// New constructs a Parser over l, the resulting l.NextToken(); call
// ParseProgram to run it to completion.
func New(l *lexer.Lexer) (*Parser, error) {
	p := &Parser{l: l}
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p, nil
}

// Errors returns every parse error accumulated during ParseProgram.
func (p *Parser) Errors() []error { return p.errors }

func (p *Parser) next() error {
	p.curToken = p.peekToken
	tok, err := p.l.NextToken()
	if err != nil {
		return err
	}
	p.peekToken = tok
	return nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	err := &Error{Msg: fmt.Sprintf(format, args...), Line: p.curToken.Line, Col: p.curToken.Col}
	p.errors = append(p.errors, err)
	return err
}

func (p *Parser) expect(t token.Type) error {
	if p.curToken.Type != t {
		return p.errorf("expected %s, got %s (%q)", t, p.curToken.Type, p.curToken.Literal)
	}
	return p.next()
}

// ParseProgram parses the entire token stream into an ast.Program. It
// stops at the first error.
func (p *Parser) ParseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	for p.curToken.Type != token.EOF {
		form, err := p.parseTopLevelForm()
		if err != nil {
			return nil, err
		}
		prog.Forms = append(prog.Forms, form)
	}
	return prog, nil
}

// parseTopLevelForm parses one form that may legally appear directly
// inside a Program: a definition (static/fn/struct/use) or any
// expression.
func (p *Parser) parseTopLevelForm() (ast.TopLevelForm, error) {
	if p.curToken.Type == token.LPAREN && p.peekToken.Type == token.SYMBOL {
		switch p.peekToken.Literal {
		case "static":
			return p.parseStatic()
		case "fn":
			return p.parseFn()
		case "struct":
			return p.parseStructDef()
		case "use":
			return p.parseUse()
		}
	}
	return p.parseExpression()
}

func (p *Parser) parseSymbol() (*ast.Symbol, error) {
	if p.curToken.Type != token.SYMBOL {
		return nil, p.errorf("expected symbol, got %s (%q)", p.curToken.Type, p.curToken.Literal)
	}
	sym := &ast.Symbol{Name: p.curToken.Literal}
	if err := p.next(); err != nil {
		return nil, err
	}
	return sym, nil
}

func (p *Parser) parseSymbolList() ([]*ast.Symbol, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var syms []*ast.Symbol
	for p.curToken.Type != token.RPAREN {
		sym, err := p.parseSymbol()
		if err != nil {
			return nil, err
		}
		syms = append(syms, sym)
	}
	return syms, p.expect(token.RPAREN)
}

// parseBody parses zero or more expressions up to (but not consuming)
// the closing RPAREN of the enclosing form.
func (p *Parser) parseBody() ([]ast.Expression, error) {
	var body []ast.Expression
	for p.curToken.Type != token.RPAREN {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		body = append(body, expr)
	}
	return body, nil
}

func (p *Parser) parseStatic() (*ast.Static, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // consumes "static"
		return nil, err
	}
	name, err := p.parseSymbol()
	if err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.Static{Name: name, Value: value}, nil
}

func (p *Parser) parseFn() (*ast.Fn, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "fn"
		return nil, err
	}
	name, err := p.parseSymbol()
	if err != nil {
		return nil, err
	}
	params, err := p.parseSymbolList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &ast.Fn{Name: name, Params: params, Body: body}, p.expect(token.RPAREN)
}

func (p *Parser) parseStructDef() (*ast.StructDef, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "struct"
		return nil, err
	}
	name, err := p.parseSymbol()
	if err != nil {
		return nil, err
	}
	fields, err := p.parseSymbolList()
	if err != nil {
		return nil, err
	}
	return &ast.StructDef{Name: name, Fields: fields}, p.expect(token.RPAREN)
}

func (p *Parser) parseUse() (*ast.Use, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "use"
		return nil, err
	}
	module, err := p.parseSymbol()
	if err != nil {
		return nil, err
	}
	use := &ast.Use{Module: module}
	if p.curToken.Type == token.SYMBOL && p.curToken.Literal == "*" {
		use.Wildcard = true
		if err := p.next(); err != nil {
			return nil, err
		}
	} else {
		items, err := p.parseSymbolList()
		if err != nil {
			return nil, err
		}
		use.Items = items
	}
	return use, p.expect(token.RPAREN)
}

// parseExpression parses one Expression node.
func (p *Parser) parseExpression() (ast.Expression, error) {
	switch p.curToken.Type {
	case token.NUMBER:
		return p.parseNumber()
	case token.STRING:
		lit := p.curToken.Literal
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.String{Value: lit}, nil
	case token.BOOLEAN:
		val := p.curToken.Literal == "true"
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Boolean{Value: val}, nil
	case token.NIL:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Nil{}, nil
	case token.SYMBOL:
		return p.parseSymbol()
	case token.QUOTE:
		return p.parseQuote()
	case token.LPAREN:
		return p.parseParenForm()
	default:
		return nil, p.errorf("unexpected token %s (%q) in expression position", p.curToken.Type, p.curToken.Literal)
	}
}

func (p *Parser) parseNumber() (*ast.Number, error) {
	lit := p.curToken.Literal
	if err := p.next(); err != nil {
		return nil, err
	}
	for _, ch := range lit {
		if ch == '.' {
			f, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return nil, p.errorf("invalid float literal %q: %s", lit, err)
			}
			return &ast.Number{IsFloat: true, FloatValue: f}, nil
		}
	}
	i, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return nil, p.errorf("invalid integer literal %q: %s", lit, err)
	}
	return &ast.Number{IntValue: i}, nil
}

// parseQuote parses 'datum, where datum is raw, unevaluated data rather
// than a normal expression.
func (p *Parser) parseQuote() (*ast.Quote, error) {
	if err := p.expect(token.QUOTE); err != nil {
		return nil, err
	}
	datum, err := p.parseQuoteDatum()
	if err != nil {
		return nil, err
	}
	return &ast.Quote{Payload: datum}, nil
}

func (p *Parser) parseQuoteDatum() (ast.QuoteDatum, error) {
	switch p.curToken.Type {
	case token.SYMBOL:
		return p.parseSymbol()
	case token.NUMBER:
		return p.parseNumber()
	case token.STRING:
		lit := p.curToken.Literal
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.String{Value: lit}, nil
	case token.BOOLEAN:
		val := p.curToken.Literal == "true"
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Boolean{Value: val}, nil
	case token.NIL:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &ast.Nil{}, nil
	case token.QUOTE:
		return p.parseQuote()
	case token.LPAREN:
		if err := p.next(); err != nil {
			return nil, err
		}
		var items []ast.QuoteDatum
		for p.curToken.Type != token.RPAREN {
			item, err := p.parseQuoteDatum()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return &ast.QuoteList{Items: items}, p.expect(token.RPAREN)
	default:
		return nil, p.errorf("unexpected token %s (%q) inside quoted datum", p.curToken.Type, p.curToken.Literal)
	}
}

// parseParenForm parses a parenthesized expression: one of the fixed
// keyword forms (if/let/lambda/get/set/while/begin), or a general call.
func (p *Parser) parseParenForm() (ast.Expression, error) {
	if p.peekToken.Type == token.SYMBOL {
		switch p.peekToken.Literal {
		case "if":
			return p.parseIf()
		case "let":
			return p.parseLet()
		case "lambda":
			return p.parseLambda()
		case "get":
			return p.parseGet()
		case "set":
			return p.parseSet()
		case "while":
			return p.parseWhile()
		case "begin":
			return p.parseBegin()
		}
	}
	return p.parseCall()
}

func (p *Parser) parseIf() (*ast.If, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "if"
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	els, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.If{Cond: cond, Then: then, Else: els}, p.expect(token.RPAREN)
}

func (p *Parser) parseLet() (*ast.Let, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "let"
		return nil, err
	}
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var bindings []ast.LetBinding
	for p.curToken.Type != token.RPAREN {
		if err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		name, err := p.parseSymbol()
		if err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, ast.LetBinding{Name: name, Value: value})
		if err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
	}
	if err := p.expect(token.RPAREN); err != nil { // close bindings list
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &ast.Let{Bindings: bindings, Body: body}, p.expect(token.RPAREN)
}

func (p *Parser) parseLambda() (*ast.Lambda, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "lambda"
		return nil, err
	}
	params, err := p.parseSymbolList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &ast.Lambda{Params: params, Body: body}, p.expect(token.RPAREN)
}

func (p *Parser) parseGet() (*ast.Get, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "get"
		return nil, err
	}
	instance, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	field, err := p.parseSymbol()
	if err != nil {
		return nil, err
	}
	return &ast.Get{Instance: instance, Field: field}, p.expect(token.RPAREN)
}

func (p *Parser) parseSet() (*ast.Set, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "set"
		return nil, err
	}
	instance, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	field, err := p.parseSymbol()
	if err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.Set{Instance: instance, Field: field, Value: value}, p.expect(token.RPAREN)
}

func (p *Parser) parseWhile() (*ast.While, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "while"
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &ast.While{Cond: cond, Body: body}, p.expect(token.RPAREN)
}

func (p *Parser) parseBegin() (*ast.Begin, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	if err := p.expect(token.SYMBOL); err != nil { // "begin"
		return nil, err
	}
	exprs, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &ast.Begin{Expressions: exprs}, p.expect(token.RPAREN)
}

func (p *Parser) parseCall() (*ast.Call, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	callee, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	args, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return &ast.Call{Callee: callee, Args: args}, p.expect(token.RPAREN)
}
