package dsl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
)

/*
 * Where-expression scanning.
 *
 * Where clauses filter rule expansion over the roster/calendar and must be
 * resolvable before solving. The scanner parses each clause with cel-go and
 * walks the AST collecting call sites:
 *
 *   - forbidden functions (assigned, shift_of, ...) read the solution and
 *     cannot be compiled into a fixed model: hard issue
 *   - allowed helpers (dept, is_weekend, ...) pass silently
 *   - any other user-level call: warning, the author may have typoed
 *
 * CEL's own operators and macros surface as calls with non-identifier
 * names (_&&_, _==_, @in); those are skipped. Parsing only, no type
 * checking: where clauses reference roster fields the compiler does not
 * model, and call scanning needs no type information.
 */

var whereEnvOnce = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv()
})

// scanWhere validates one where clause at path, appending to issues and
// warnings. A nil value is allowed (no filter).
func scanWhere(value any, path string, issues, warnings *[]string) {
	if value == nil {
		return
	}
	expr, ok := value.(string)
	if !ok {
		*issues = append(*issues, fmt.Sprintf("%s must be a string expression", path))
		return
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		*warnings = append(*warnings, fmt.Sprintf("%s is empty, ignored", path))
		return
	}

	env, err := whereEnvOnce()
	if err != nil {
		*issues = append(*issues, fmt.Sprintf("%s: expression environment unavailable: %v", path, err))
		return
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		*issues = append(*issues, fmt.Sprintf("%s is not a valid expression: %v", path, iss.Err()))
		return
	}

	for _, fn := range calledFunctions(ast) {
		lower := strings.ToLower(fn)
		switch {
		case forbiddenWhereFunctions[lower]:
			*issues = append(*issues, fmt.Sprintf("%s may not call %s (depends on the solution, not compilable)", path, fn))
		case !allowedWhereFunctions[lower]:
			*warnings = append(*warnings, fmt.Sprintf("%s calls unknown function %s", path, fn))
		}
	}
}

// calledFunctions returns user-level function names called anywhere in the
// expression, in post-order. Operator and macro-internal names are skipped.
func calledFunctions(ast *cel.Ast) []string {
	var names []string
	celast.PostOrderVisit(ast.NativeRep().Expr(), celast.NewExprVisitor(func(e celast.Expr) {
		if e.Kind() != celast.CallKind {
			return
		}
		name := e.AsCall().FunctionName()
		if isIdentifier(name) {
			names = append(names, name)
		}
	}))
	return names
}

// isIdentifier filters out CEL operator names (_&&_, @in, !_ and friends),
// which are calls in the AST but not author-visible functions.
func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '_' && i > 0:
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
