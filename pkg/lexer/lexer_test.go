package lexer

import "testing"

func TestNextToken_BasicTokens(t *testing.T) {
	input := `( ) { } [ ] ; , . : = + - * / % ! ~ & | ^ < > <= >= == != && || << >> ++ --`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenSemicolon, ";"},
		{TokenComma, ","},
		{TokenDot, "."},
		{TokenColon, ":"},
		{TokenAssign, "="},
		{TokenPlus, "+"},
		{TokenMinus, "-"},
		{TokenStar, "*"},
		{TokenSlash, "/"},
		{TokenPercent, "%"},
		{TokenBang, "!"},
		{TokenTilde, "~"},
		{TokenAmp, "&"},
		{TokenPipe, "|"},
		{TokenCaret, "^"},
		{TokenLess, "<"},
		{TokenGreater, ">"},
		{TokenLessEq, "<="},
		{TokenGreaterEq, ">="},
		{TokenEq, "=="},
		{TokenNotEq, "!="},
		{TokenAndAnd, "&&"},
		{TokenOrOr, "||"},
		{TokenShl, "<<"},
		{TokenShr, ">>"},
		{TokenIncrement, "++"},
		{TokenDecrement, "--"},
		{TokenEOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("test[%d] - wrong type. expected=%v, got=%v (literal %q)", i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tt.expectedType != TokenEOF && tok.Literal != tt.expectedLiteral {
			t.Fatalf("test[%d] - wrong literal. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNextToken_KeywordsAndIdentifiers(t *testing.T) {
	input := `int float string object mapping mixed void function if else while for return break continue true false null nomask static private varargs foo _bar baz123`

	expectedKeywords := 22
	l := New(input)
	count := 0
	for {
		tok := l.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenKeyword {
			count++
		}
		if tok.Literal == "foo" && tok.Type != TokenIdentifier {
			t.Fatalf("expected foo to lex as identifier, got %v", tok.Type)
		}
	}
	if count != expectedKeywords {
		t.Fatalf("expected %d keywords, got %d", expectedKeywords, count)
	}
}

func TestNextToken_IntAndFloatLiterals(t *testing.T) {
	cases := []struct {
		input    string
		wantType TokenType
		wantLit  string
	}{
		{"42", TokenInteger, "42"},
		{"0", TokenInteger, "0"},
		{"3.14", TokenFloat, "3.14"},
		{"1e10", TokenFloat, "1e10"},
		{"2.5e-3", TokenFloat, "2.5e-3"},
	}
	for _, c := range cases {
		l := New(c.input)
		tok := l.NextToken()
		if tok.Type != c.wantType || tok.Literal != c.wantLit {
			t.Errorf("input %q: got (%v, %q), want (%v, %q)", c.input, tok.Type, tok.Literal, c.wantType, c.wantLit)
		}
	}
}

func TestNextToken_StringLiterals(t *testing.T) {
	input := `"hello world" 'single' "with \"escaped\" quote" "line\nbreak"`
	l := New(input)

	tok := l.NextToken()
	if tok.Type != TokenString || tok.Literal != "hello world" {
		t.Fatalf("got (%v, %q)", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != TokenString || tok.Literal != "single" {
		t.Fatalf("got (%v, %q)", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != TokenString || tok.Literal != `with "escaped" quote` {
		t.Fatalf("got (%v, %q)", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != TokenString || tok.Literal != "line\nbreak" {
		t.Fatalf("got (%v, %q)", tok.Type, tok.Literal)
	}
}

func TestNextToken_UnterminatedStringIsError(t *testing.T) {
	l := New(`"unterminated`)
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("expected TokenError, got %v", tok.Type)
	}
}

func TestNextToken_LineComment(t *testing.T) {
	input := "int x; // trailing comment\nfloat y;"
	l := New(input)
	var kinds []TokenType
	for {
		tok := l.NextToken()
		if tok.Type == TokenEOF {
			break
		}
		kinds = append(kinds, tok.Type)
	}
	want := []TokenType{TokenKeyword, TokenIdentifier, TokenSemicolon, TokenKeyword, TokenIdentifier, TokenSemicolon}
	if len(kinds) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(kinds), len(want), kinds)
	}
}

func TestNextToken_BlockComment(t *testing.T) {
	input := "int /* a\nmulti\nline comment */ x;"
	l := New(input)
	tok := l.NextToken()
	if tok.Type != TokenKeyword {
		t.Fatalf("expected keyword 'int', got %v", tok.Type)
	}
	tok = l.NextToken()
	if tok.Type != TokenIdentifier || tok.Literal != "x" {
		t.Fatalf("expected identifier 'x' after block comment, got (%v,%q)", tok.Type, tok.Literal)
	}
}

func TestPeek_DoesNotConsume(t *testing.T) {
	l := New("int x;")
	peeked := l.Peek()
	actual := l.NextToken()
	if peeked.Type != actual.Type || peeked.Literal != actual.Literal {
		t.Fatalf("peek mismatch: peeked=%v actual=%v", peeked, actual)
	}
}

func TestTokenize_DrainsToEOF(t *testing.T) {
	toks := New("1 + 2;").Tokenize()
	if toks[len(toks)-1].Type != TokenEOF {
		t.Fatalf("expected final token to be EOF, got %v", toks[len(toks)-1].Type)
	}
}
