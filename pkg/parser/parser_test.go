package parser

import (
	"testing"

	"github.com/Thurtea/amlp-driver/pkg/ast"
)

func parseProgram(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New(src)
	prog, err := p.Parse()
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return prog
}

func TestParseGlobalDecl(t *testing.T) {
	prog := parseProgram(t, `int counter = 0;`)
	if len(prog.Declarations) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(prog.Declarations))
	}
	g, ok := prog.Declarations[0].(*ast.GlobalDecl)
	if !ok {
		t.Fatalf("expected *ast.GlobalDecl, got %T", prog.Declarations[0])
	}
	if g.TypeName != "int" || g.Name != "counter" {
		t.Fatalf("unexpected global: %+v", g)
	}
	lit, ok := g.Init.(*ast.IntegerLiteral)
	if !ok || lit.Value != 0 {
		t.Fatalf("expected init literal 0, got %+v", g.Init)
	}
}

func TestParseFunctionDeclWithParams(t *testing.T) {
	prog := parseProgram(t, `int add(int a, int b) { return a + b; }`)
	fn, ok := prog.Declarations[0].(*ast.FunctionDecl)
	if !ok {
		t.Fatalf("expected *ast.FunctionDecl, got %T", prog.Declarations[0])
	}
	if fn.Name != "add" || fn.ReturnType != "int" {
		t.Fatalf("unexpected function header: %+v", fn)
	}
	if len(fn.Params) != 2 || fn.Params[0].Name != "a" || fn.Params[1].Name != "b" {
		t.Fatalf("unexpected params: %+v", fn.Params)
	}
	if len(fn.Body.Statements) != 1 {
		t.Fatalf("expected 1 statement in body, got %d", len(fn.Body.Statements))
	}
	ret, ok := fn.Body.Statements[0].(*ast.ReturnStatement)
	if !ok {
		t.Fatalf("expected return statement, got %T", fn.Body.Statements[0])
	}
	bin, ok := ret.Value.(*ast.BinaryExpr)
	if !ok || bin.Operator != "+" {
		t.Fatalf("expected a + b, got %+v", ret.Value)
	}
}

func TestParseIfElseChain(t *testing.T) {
	src := `void f() {
		if (x > 0) {
			return;
		} else if (x < 0) {
			return;
		} else {
			return;
		}
	}`
	prog := parseProgram(t, src)
	fn := prog.Declarations[0].(*ast.FunctionDecl)
	ifs, ok := fn.Body.Statements[0].(*ast.IfStatement)
	if !ok {
		t.Fatalf("expected if statement, got %T", fn.Body.Statements[0])
	}
	elseIf, ok := ifs.Else.(*ast.IfStatement)
	if !ok {
		t.Fatalf("expected else-if chain, got %T", ifs.Else)
	}
	if _, ok := elseIf.Else.(*ast.BlockStatement); !ok {
		t.Fatalf("expected trailing else block, got %T", elseIf.Else)
	}
}

func TestParseWhileLoopWithBreakContinue(t *testing.T) {
	src := `void f() {
		while (1) {
			if (x) {
				break;
			}
			continue;
		}
	}`
	prog := parseProgram(t, src)
	fn := prog.Declarations[0].(*ast.FunctionDecl)
	loop, ok := fn.Body.Statements[0].(*ast.WhileStatement)
	if !ok {
		t.Fatalf("expected while statement, got %T", fn.Body.Statements[0])
	}
	if len(loop.Body.Statements) != 2 {
		t.Fatalf("expected 2 statements in loop body, got %d", len(loop.Body.Statements))
	}
	if _, ok := loop.Body.Statements[1].(*ast.ContinueStatement); !ok {
		t.Fatalf("expected continue statement, got %T", loop.Body.Statements[1])
	}
}

func TestParseArrayLiteral(t *testing.T) {
	prog := parseProgram(t, `mixed xs = ({ 1, 2, 3 });`)
	g := prog.Declarations[0].(*ast.GlobalDecl)
	arr, ok := g.Init.(*ast.ArrayLiteral)
	if !ok {
		t.Fatalf("expected array literal, got %T", g.Init)
	}
	if len(arr.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(arr.Elements))
	}
}

func TestParseMappingLiteral(t *testing.T) {
	prog := parseProgram(t, `mapping m = (["a": 1, "b": 2]);`)
	g := prog.Declarations[0].(*ast.GlobalDecl)
	m, ok := g.Init.(*ast.MappingLiteral)
	if !ok {
		t.Fatalf("expected mapping literal, got %T", g.Init)
	}
	if len(m.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m.Entries))
	}
}

func TestParseCallAndMemberAndIndex(t *testing.T) {
	prog := parseProgram(t, `void f() { write(this_object().name[0]); }`)
	fn := prog.Declarations[0].(*ast.FunctionDecl)
	stmt := fn.Body.Statements[0].(*ast.ExpressionStatement)
	call, ok := stmt.Expression.(*ast.CallExpr)
	if !ok {
		t.Fatalf("expected call expr, got %T", stmt.Expression)
	}
	idx, ok := call.Args[0].(*ast.IndexExpr)
	if !ok {
		t.Fatalf("expected index expr argument, got %T", call.Args[0])
	}
	member, ok := idx.Collection.(*ast.MemberExpr)
	if !ok || member.Name != "name" {
		t.Fatalf("expected member expr 'name', got %+v", idx.Collection)
	}
}

func TestParseAssignment(t *testing.T) {
	prog := parseProgram(t, `void f() { x = y = 5; }`)
	fn := prog.Declarations[0].(*ast.FunctionDecl)
	stmt := fn.Body.Statements[0].(*ast.ExpressionStatement)
	outer, ok := stmt.Expression.(*ast.Assignment)
	if !ok {
		t.Fatalf("expected assignment, got %T", stmt.Expression)
	}
	if _, ok := outer.Value.(*ast.Assignment); !ok {
		t.Fatalf("expected right-associative chained assignment, got %T", outer.Value)
	}
}

func TestParseErrorsAccumulateAndRecover(t *testing.T) {
	src := `int ; int y = 1;`
	p := New(src)
	prog, err := p.Parse()
	if err == nil {
		t.Fatalf("expected a parse error")
	}
	if len(p.Errors()) == 0 {
		t.Fatalf("expected accumulated errors")
	}
	found := false
	for _, d := range prog.Declarations {
		if g, ok := d.(*ast.GlobalDecl); ok && g.Name == "y" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected parser to recover and still parse the second declaration")
	}
}
