package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: whole-program lint checks
// ---------------------------------------------------------------------------

// SemanticAnalyzer reports constructs that are legal but almost certainly
// not what the author meant. Nothing it finds changes how a script runs.
type SemanticAnalyzer struct {
	warnings []Diagnostic

	// Names assigned by make/change and procedures defined by make,
	// anywhere in the program.
	assigned map[string]bool
	procs    map[string]bool

	// Nesting while walking.
	loopDepth int
	procDepth int
}

// NewSemanticAnalyzer creates a new semantic analyzer.
func NewSemanticAnalyzer() *SemanticAnalyzer {
	return &SemanticAnalyzer{
		assigned: make(map[string]bool),
		procs:    make(map[string]bool),
	}
}

// Check analyzes statements and returns the warnings found.
func Check(stmts []Stmt) []Diagnostic {
	s := NewSemanticAnalyzer()
	s.Analyze(stmts)
	return s.Warnings()
}

// Warnings returns accumulated analysis warnings.
func (s *SemanticAnalyzer) Warnings() []Diagnostic {
	return s.warnings
}

// warnAt records a warning at the start of node.
func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...interface{}) {
	s.warnings = append(s.warnings, Diagnostic{
		Pos:     node.Span().Start,
		Message: fmt.Sprintf(format, args...),
	})
}

// Analyze collects every definition first, since a procedure body may
// refer to names assigned later in the script, then checks each use.
func (s *SemanticAnalyzer) Analyze(stmts []Stmt) {
	Walk(stmts, func(st Stmt) bool {
		switch n := st.(type) {
		case *Make:
			if n.Value != nil {
				s.assigned[n.Name] = true
			}
			if len(n.Body) > 0 {
				s.procs[n.Name] = true
			}
		case *Change:
			s.assigned[n.Name] = true
		}
		return true
	})
	s.analyzeStatements(stmts)
}

func (s *SemanticAnalyzer) analyzeStatements(stmts []Stmt) {
	for _, st := range stmts {
		s.analyzeStmt(st)
	}
}

func (s *SemanticAnalyzer) analyzeStmt(stmt Stmt) {
	switch st := stmt.(type) {
	case *Make:
		if st.Value != nil {
			s.analyzeExpr(st.Value)
		}
		if st.Value == nil && len(st.Body) == 0 {
			s.warnAt(st, "make %s has neither a value nor a body", st.Name)
		}
		s.procDepth++
		s.analyzeStatements(st.Body)
		s.procDepth--

	case *Change:
		s.analyzeExpr(st.Value)

	case *Say:
		for _, v := range st.Values {
			s.analyzeExpr(v)
		}

	case *If:
		s.analyzeExpr(st.Cond)
		switch c := st.Cond.(type) {
		case *TextLiteral:
			s.warnAt(c, "condition is text, the body never runs")
		case *NumberLiteral:
			if c.Value == 0 {
				s.warnAt(c, "condition is always 0, the body never runs")
			}
		}
		s.checkEmptyBody(st, "if", st.Body)
		s.analyzeStatements(st.Body)

	case *Repeat:
		s.analyzeExpr(st.Count)
		switch c := st.Count.(type) {
		case *TextLiteral:
			s.warnAt(c, "repeat count is text, the body never runs")
		case *NumberLiteral:
			if c.Value <= 0 {
				s.warnAt(c, "repeat count %d is not positive, the body never runs", c.Value)
			}
		}
		s.checkEmptyBody(st, "repeat", st.Body)
		s.analyzeStatements(st.Body)

	case *Forever:
		s.checkEmptyBody(st, "forever", st.Body)
		s.loopDepth++
		s.analyzeStatements(st.Body)
		s.loopDepth--

	case *ExprStmt:
		if call, ok := st.Expr.(*Call); ok {
			if !s.procs[call.Name] {
				s.warnAt(call, "procedure %s is never defined, the call does nothing", call.Name)
			}
			return
		}
		s.analyzeExpr(st.Expr)
	}
}

// checkEmptyBody flags bodies emptied by a bare identifier right after the
// header: the identifier runs after the construct, not inside it.
func (s *SemanticAnalyzer) checkEmptyBody(stmt Stmt, keyword string, body []Stmt) {
	if len(body) == 0 {
		s.warnAt(stmt, "%s has an empty body; a procedure call cannot start a nested body", keyword)
	}
}

func (s *SemanticAnalyzer) analyzeExpr(expr Expr) {
	switch e := expr.(type) {
	case *Variable:
		if !s.assigned[e.Name] {
			if s.procs[e.Name] {
				s.warnAt(e, "%s is a procedure; as a value it reads 0", e.Name)
			} else {
				s.warnAt(e, "variable %s is never assigned, it reads 0", e.Name)
			}
		}
	case *BinaryOp:
		s.analyzeExpr(e.Left)
		s.analyzeExpr(e.Right)
		if (e.Op == "/" || e.Op == "%") && isZeroLiteral(e.Right) {
			s.warnAt(e, "%s by zero yields 0", opName(e.Op))
		}
		if isTextLiteral(e.Left) || isTextLiteral(e.Right) {
			s.warnAt(e, "arithmetic on text yields 0")
		}
	case *KeyPressed:
		if s.loopDepth == 0 && s.procDepth == 0 {
			s.warnAt(e, "pressed outside forever never sees a key")
		}
	// Literals and calls don't need checking
	case *NumberLiteral, *TextLiteral, *Call:
	}
}

func isZeroLiteral(e Expr) bool {
	n, ok := e.(*NumberLiteral)
	return ok && n.Value == 0
}

func isTextLiteral(e Expr) bool {
	_, ok := e.(*TextLiteral)
	return ok
}

func opName(op string) string {
	if op == "%" {
		return "remainder"
	}
	return "division"
}
