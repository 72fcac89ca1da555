package access

import (
	"strings"
	"sync"

	"github.com/hashicorp/go-bexpr"
)

// exprCache stores compiled go-bexpr evaluators for performance
// Key: attribute expression string, Value: *bexpr.Evaluator
var exprCache = &sync.Map{}

// EvaluateAttributeExpr evaluates a go-bexpr attribute expression against
// request context attributes. Permission conditions may carry such an
// expression (for example `department in ["finance", "audit"] and channel == "internal"`).
//
// Empty expressions return true (no constraint). Any compile or evaluation
// error denies: an unparseable or unresolvable condition must never widen
// access.
func EvaluateAttributeExpr(expr string, attrs map[string]any) bool {
	// Empty expression means no constraint
	if strings.TrimSpace(expr) == "" {
		return true
	}
	if attrs == nil {
		attrs = map[string]any{}
	}

	// Check cache for compiled evaluator
	if cached, ok := exprCache.Load(expr); ok {
		evaluator := cached.(*bexpr.Evaluator)
		matches, err := evaluator.Evaluate(attrs)
		if err != nil {
			// Invalid evaluation (e.g., missing attribute key) - deny
			return false
		}
		return matches
	}

	// Compile and cache evaluator
	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		// Invalid expression syntax - deny
		return false
	}
	exprCache.Store(expr, evaluator)

	matches, err := evaluator.Evaluate(attrs)
	if err != nil {
		return false
	}
	return matches
}
