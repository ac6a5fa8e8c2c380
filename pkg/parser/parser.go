// Package parser implements a recursive-descent, precedence-climbing
// parser for the AMLP scripting language (spec.md §4.3).
//
// The parser keeps a two-token lookahead window (curTok, peekTok) in the
// style of the teacher's smog parser, but the grammar itself is the
// C-family grammar of top-level function/global declarations, brace
// blocks, and the usual expression precedence ladder rather than
// Smalltalk message sends.
//
// Errors are accumulated rather than aborting the first time something
// looks wrong: on a syntax error the parser reports it, then resyncs by
// skipping tokens until it finds a statement boundary (`;`, `}`, or a
// token that starts a new declaration) before continuing, so that one
// mistake does not prevent every other one from being reported in the
// same pass.
package parser

import (
	"fmt"
	"strconv"

	"github.com/Thurtea/amlp-driver/pkg/ast"
	"github.com/Thurtea/amlp-driver/pkg/lexer"
)

// precedence levels, lowest to highest.
const (
	_ int = iota
	precLowest
	precOr      // ||
	precAnd     // &&
	precBitOr   // |
	precBitXor  // ^
	precBitAnd  // &
	precEquality
	precComparison // < > <= >=
	precShift      // << >>
	precAdditive   // + -
	precMultiplicative // * / %
	precUnary
	precPostfix
)

var binaryPrecedence = map[lexer.TokenType]int{
	lexer.TokenOrOr:      precOr,
	lexer.TokenAndAnd:    precAnd,
	lexer.TokenPipe:      precBitOr,
	lexer.TokenCaret:     precBitXor,
	lexer.TokenAmp:       precBitAnd,
	lexer.TokenEq:        precEquality,
	lexer.TokenNotEq:     precEquality,
	lexer.TokenLess:      precComparison,
	lexer.TokenGreater:   precComparison,
	lexer.TokenLessEq:    precComparison,
	lexer.TokenGreaterEq: precComparison,
	lexer.TokenShl:       precShift,
	lexer.TokenShr:       precShift,
	lexer.TokenPlus:      precAdditive,
	lexer.TokenMinus:     precAdditive,
	lexer.TokenStar:      precMultiplicative,
	lexer.TokenSlash:     precMultiplicative,
	lexer.TokenPercent:   precMultiplicative,
}

var typeKeywords = map[string]bool{
	"int": true, "float": true, "string": true, "object": true,
	"mapping": true, "mixed": true, "void": true, "function": true,
}

var modifierKeywords = map[string]bool{
	"nomask": true, "static": true, "private": true, "varargs": true,
}

// Parser converts a token stream into an *ast.Program.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string
}

// New creates a parser over source, primed with the first two tokens.
func New(source string) *Parser {
	p := &Parser{l: lexer.New(source)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
}

// Errors returns every syntax error accumulated during Parse.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) addError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.errors = append(p.errors, fmt.Sprintf("%d:%d: %s", p.curTok.Line, p.curTok.Column, msg))
}

// synchronize implements panic-mode error recovery: skip tokens until a
// plausible statement or declaration boundary is reached, so a single
// malformed construct doesn't cascade into spurious follow-on errors.
// Grounded on the resync strategy of the original C driver's parser.
func (p *Parser) synchronize() {
	for p.curTok.Type != lexer.TokenEOF {
		if p.curTok.Type == lexer.TokenSemicolon {
			p.nextToken()
			return
		}
		if p.curTok.Type == lexer.TokenRBrace {
			return
		}
		if p.curTok.Type == lexer.TokenKeyword && (typeKeywords[p.curTok.Literal] || modifierKeywords[p.curTok.Literal]) {
			return
		}
		p.nextToken()
	}
}

// Parse parses the whole source as a sequence of top-level declarations.
func (p *Parser) Parse() (*ast.Program, error) {
	program := &ast.Program{}

	for p.curTok.Type != lexer.TokenEOF {
		decl := p.parseTopLevelDecl()
		if decl != nil {
			program.Declarations = append(program.Declarations, decl)
		} else {
			p.synchronize()
		}
	}

	if len(p.errors) > 0 {
		return program, fmt.Errorf("parser errors: %v", p.errors)
	}
	return program, nil
}

func (p *Parser) isTypeKeyword(tok lexer.Token) bool {
	return tok.Type == lexer.TokenKeyword && typeKeywords[tok.Literal]
}

func (p *Parser) isModifierKeyword(tok lexer.Token) bool {
	return tok.Type == lexer.TokenKeyword && modifierKeywords[tok.Literal]
}

// parseTopLevelDecl parses one function or global-variable declaration.
// Both start with an optional run of modifier keywords, then a type
// name, then an identifier; a following `(` makes it a function, a
// following `=` or `;` makes it a global.
func (p *Parser) parseTopLevelDecl() ast.Statement {
	for p.isModifierKeyword(p.curTok) {
		p.nextToken()
	}

	if !p.isTypeKeyword(p.curTok) {
		p.addError("expected type name at top level, got %q", p.curTok.Literal)
		return nil
	}
	typeName := p.curTok.Literal
	p.nextToken()

	if p.curTok.Type != lexer.TokenIdentifier {
		p.addError("expected identifier after type %q", typeName)
		return nil
	}
	name := p.curTok.Literal
	p.nextToken()

	if p.curTok.Type == lexer.TokenLParen {
		return p.parseFunctionDecl(typeName, name)
	}
	return p.parseGlobalDecl(typeName, name)
}

func (p *Parser) parseFunctionDecl(returnType, name string) ast.Statement {
	if !p.expect(lexer.TokenLParen, "(") {
		return nil
	}

	var params []ast.Param
	for p.curTok.Type != lexer.TokenRParen {
		for p.isModifierKeyword(p.curTok) {
			p.nextToken()
		}
		if !p.isTypeKeyword(p.curTok) {
			p.addError("expected parameter type, got %q", p.curTok.Literal)
			return nil
		}
		ptype := p.curTok.Literal
		p.nextToken()
		if p.curTok.Type != lexer.TokenIdentifier {
			p.addError("expected parameter name, got %q", p.curTok.Literal)
			return nil
		}
		params = append(params, ast.Param{TypeName: ptype, Name: p.curTok.Literal})
		p.nextToken()
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	if !p.expect(lexer.TokenRParen, ")") {
		return nil
	}

	body := p.parseBlockStatement()
	if body == nil {
		return nil
	}
	return &ast.FunctionDecl{ReturnType: returnType, Name: name, Params: params, Body: body}
}

func (p *Parser) parseGlobalDecl(typeName, name string) ast.Statement {
	var init ast.Expression
	if p.curTok.Type == lexer.TokenAssign {
		p.nextToken()
		init = p.parseExpression(precLowest)
	}
	p.expect(lexer.TokenSemicolon, ";")
	return &ast.GlobalDecl{TypeName: typeName, Name: name, Init: init}
}

func (p *Parser) expect(tt lexer.TokenType, desc string) bool {
	if p.curTok.Type != tt {
		p.addError("expected %q, got %q", desc, p.curTok.Literal)
		return false
	}
	p.nextToken()
	return true
}

func (p *Parser) parseBlockStatement() *ast.BlockStatement {
	if !p.expect(lexer.TokenLBrace, "{") {
		return nil
	}
	block := &ast.BlockStatement{}
	for p.curTok.Type != lexer.TokenRBrace && p.curTok.Type != lexer.TokenEOF {
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		} else {
			p.synchronize()
		}
	}
	p.expect(lexer.TokenRBrace, "}")
	return block
}

func (p *Parser) parseStatement() ast.Statement {
	switch {
	case p.curTok.Type == lexer.TokenLBrace:
		return p.parseBlockStatement()
	case p.curTok.Type == lexer.TokenKeyword && p.curTok.Literal == "if":
		return p.parseIfStatement()
	case p.curTok.Type == lexer.TokenKeyword && p.curTok.Literal == "while":
		return p.parseWhileStatement()
	case p.curTok.Type == lexer.TokenKeyword && p.curTok.Literal == "return":
		return p.parseReturnStatement()
	case p.curTok.Type == lexer.TokenKeyword && p.curTok.Literal == "break":
		p.nextToken()
		p.expect(lexer.TokenSemicolon, ";")
		return &ast.BreakStatement{}
	case p.curTok.Type == lexer.TokenKeyword && p.curTok.Literal == "continue":
		p.nextToken()
		p.expect(lexer.TokenSemicolon, ";")
		return &ast.ContinueStatement{}
	case p.isLocalDeclStart():
		return p.parseLocalDecl()
	default:
		expr := p.parseExpression(precLowest)
		if expr == nil {
			return nil
		}
		p.expect(lexer.TokenSemicolon, ";")
		return &ast.ExpressionStatement{Expression: expr}
	}
}

// isLocalDeclStart reports whether the current position begins a local
// variable declaration: an optional modifier run, a type keyword, then
// an identifier (as opposed to a type keyword used as a cast or a bare
// expression, which this grammar does not have at statement position).
func (p *Parser) isLocalDeclStart() bool {
	return p.isTypeKeyword(p.curTok) || p.isModifierKeyword(p.curTok)
}

func (p *Parser) parseLocalDecl() ast.Statement {
	for p.isModifierKeyword(p.curTok) {
		p.nextToken()
	}
	if !p.isTypeKeyword(p.curTok) {
		p.addError("expected type name in local declaration, got %q", p.curTok.Literal)
		return nil
	}
	typeName := p.curTok.Literal
	p.nextToken()
	if p.curTok.Type != lexer.TokenIdentifier {
		p.addError("expected identifier in local declaration, got %q", p.curTok.Literal)
		return nil
	}
	name := p.curTok.Literal
	p.nextToken()

	var init ast.Expression
	if p.curTok.Type == lexer.TokenAssign {
		p.nextToken()
		init = p.parseExpression(precLowest)
	}
	p.expect(lexer.TokenSemicolon, ";")
	return &ast.LocalDecl{TypeName: typeName, Name: name, Init: init}
}

func (p *Parser) parseIfStatement() ast.Statement {
	p.nextToken() // consume 'if'
	if !p.expect(lexer.TokenLParen, "(") {
		return nil
	}
	cond := p.parseExpression(precLowest)
	p.expect(lexer.TokenRParen, ")")
	then := p.parseBlockStatement()
	if then == nil {
		return nil
	}

	stmt := &ast.IfStatement{Condition: cond, Then: then}
	if p.curTok.Type == lexer.TokenKeyword && p.curTok.Literal == "else" {
		p.nextToken()
		if p.curTok.Type == lexer.TokenKeyword && p.curTok.Literal == "if" {
			stmt.Else = p.parseIfStatement()
		} else {
			stmt.Else = p.parseBlockStatement()
		}
	}
	return stmt
}

func (p *Parser) parseWhileStatement() ast.Statement {
	p.nextToken() // consume 'while'
	if !p.expect(lexer.TokenLParen, "(") {
		return nil
	}
	cond := p.parseExpression(precLowest)
	p.expect(lexer.TokenRParen, ")")
	body := p.parseBlockStatement()
	if body == nil {
		return nil
	}
	return &ast.WhileStatement{Condition: cond, Body: body}
}

func (p *Parser) parseReturnStatement() ast.Statement {
	p.nextToken() // consume 'return'
	if p.curTok.Type == lexer.TokenSemicolon {
		p.nextToken()
		return &ast.ReturnStatement{}
	}
	value := p.parseExpression(precLowest)
	p.expect(lexer.TokenSemicolon, ";")
	return &ast.ReturnStatement{Value: value}
}

// parseExpression implements precedence climbing: parse a unary
// expression, then repeatedly fold in binary operators whose precedence
// is at least minPrec, recursing on the right-hand side for anything
// tighter. Assignment binds loosest and is right-associative, handled
// as a special case above the climbing loop.
func (p *Parser) parseExpression(minPrec int) ast.Expression {
	left := p.parseUnary()
	if left == nil {
		return nil
	}

	if p.curTok.Type == lexer.TokenAssign {
		p.nextToken()
		value := p.parseExpression(precLowest)
		return &ast.Assignment{Target: left, Value: value}
	}

	for {
		prec, ok := binaryPrecedence[p.curTok.Type]
		if !ok || prec < minPrec {
			return left
		}
		op := p.curTok.Literal
		p.nextToken()
		right := p.parseExpression(prec + 1)
		left = &ast.BinaryExpr{Operator: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() ast.Expression {
	switch p.curTok.Type {
	case lexer.TokenMinus, lexer.TokenBang, lexer.TokenTilde:
		op := p.curTok.Literal
		p.nextToken()
		operand := p.parseUnary()
		return &ast.UnaryExpr{Operator: op, Operand: operand}
	case lexer.TokenIncrement, lexer.TokenDecrement:
		op := p.curTok.Literal
		p.nextToken()
		operand := p.parseUnary()
		return &ast.UnaryExpr{Operator: "pre" + op, Operand: operand}
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}

	for {
		switch p.curTok.Type {
		case lexer.TokenLParen:
			expr = p.parseCall(expr)
		case lexer.TokenLBracket:
			p.nextToken()
			idx := p.parseExpression(precLowest)
			p.expect(lexer.TokenRBracket, "]")
			expr = &ast.IndexExpr{Collection: expr, Index: idx}
		case lexer.TokenDot:
			p.nextToken()
			if p.curTok.Type != lexer.TokenIdentifier {
				p.addError("expected member name after '.', got %q", p.curTok.Literal)
				return expr
			}
			name := p.curTok.Literal
			p.nextToken()
			expr = &ast.MemberExpr{Receiver: expr, Name: name}
		case lexer.TokenIncrement, lexer.TokenDecrement:
			op := p.curTok.Literal
			p.nextToken()
			expr = &ast.UnaryExpr{Operator: "post" + op, Operand: expr}
		default:
			return expr
		}
	}
}

func (p *Parser) parseCall(callee ast.Expression) ast.Expression {
	p.nextToken() // consume '('
	var args []ast.Expression
	for p.curTok.Type != lexer.TokenRParen && p.curTok.Type != lexer.TokenEOF {
		arg := p.parseExpression(precLowest)
		if arg != nil {
			args = append(args, arg)
		}
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRParen, ")")
	return &ast.CallExpr{Callee: callee, Args: args}
}

func (p *Parser) parsePrimary() ast.Expression {
	switch p.curTok.Type {
	case lexer.TokenInteger:
		v, err := strconv.ParseInt(p.curTok.Literal, 10, 64)
		if err != nil {
			p.addError("invalid integer literal %q", p.curTok.Literal)
			return nil
		}
		p.nextToken()
		return &ast.IntegerLiteral{Value: v}
	case lexer.TokenFloat:
		v, err := strconv.ParseFloat(p.curTok.Literal, 64)
		if err != nil {
			p.addError("invalid float literal %q", p.curTok.Literal)
			return nil
		}
		p.nextToken()
		return &ast.FloatLiteral{Value: v}
	case lexer.TokenString:
		v := p.curTok.Literal
		p.nextToken()
		return &ast.StringLiteral{Value: v}
	case lexer.TokenKeyword:
		switch p.curTok.Literal {
		case "true":
			p.nextToken()
			return &ast.IntegerLiteral{Value: 1}
		case "false", "null":
			p.nextToken()
			return &ast.IntegerLiteral{Value: 0}
		}
		p.addError("unexpected keyword %q in expression", p.curTok.Literal)
		return nil
	case lexer.TokenIdentifier:
		name := p.curTok.Literal
		p.nextToken()
		return &ast.Identifier{Name: name}
	case lexer.TokenLParen:
		if p.peekTok.Type == lexer.TokenLBrace {
			return p.parseArrayLiteral()
		}
		if p.peekTok.Type == lexer.TokenLBracket {
			return p.parseMappingLiteral()
		}
		p.nextToken()
		expr := p.parseExpression(precLowest)
		p.expect(lexer.TokenRParen, ")")
		return expr
	default:
		p.addError("unexpected token %q in expression", p.curTok.Literal)
		return nil
	}
}

// parseArrayLiteral parses `({ e1, e2, ... })`.
func (p *Parser) parseArrayLiteral() ast.Expression {
	p.nextToken() // consume '('
	p.nextToken() // consume '{'
	lit := &ast.ArrayLiteral{}
	for p.curTok.Type != lexer.TokenRBrace && p.curTok.Type != lexer.TokenEOF {
		elem := p.parseExpression(precLowest)
		if elem != nil {
			lit.Elements = append(lit.Elements, elem)
		}
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRBrace, "}")
	p.expect(lexer.TokenRParen, ")")
	return lit
}

// parseMappingLiteral parses `([ "k": v, ... ])`.
func (p *Parser) parseMappingLiteral() ast.Expression {
	p.nextToken() // consume '('
	p.nextToken() // consume '['
	lit := &ast.MappingLiteral{}
	for p.curTok.Type != lexer.TokenRBracket && p.curTok.Type != lexer.TokenEOF {
		key := p.parseExpression(precLowest)
		p.expect(lexer.TokenColon, ":")
		val := p.parseExpression(precLowest)
		lit.Entries = append(lit.Entries, ast.MappingEntry{Key: key, Value: val})
		if p.curTok.Type == lexer.TokenComma {
			p.nextToken()
		}
	}
	p.expect(lexer.TokenRBracket, "]")
	p.expect(lexer.TokenRParen, ")")
	return lit
}
