package stage

import "strings"

// evaluateCondition interprets a small boolean expression language over
// prior stage outcomes: OR-of-ANDs of terms shaped "<stageName>.success" or
// "<stageName>.failed", each optionally negated with a leading "!". An
// empty expression is vacuously true.
//
// outcome reports, for a stage name, whether it is known to have succeeded
// and whether it is known to have failed; a stage absent from the run (not
// yet executed, or skipped) answers false to both.
func evaluateCondition(expr string, outcome func(stageName string) (succeeded, failed bool)) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}

	for _, orClause := range strings.Split(expr, "||") {
		if evaluateAndClause(orClause, outcome) {
			return true
		}
	}
	return false
}

func evaluateAndClause(clause string, outcome func(string) (bool, bool)) bool {
	terms := strings.Split(clause, "&&")
	for _, term := range terms {
		if !evaluateTerm(term, outcome) {
			return false
		}
	}
	return true
}

func evaluateTerm(term string, outcome func(string) (bool, bool)) bool {
	term = strings.TrimSpace(term)
	negate := false
	for strings.HasPrefix(term, "!") {
		negate = !negate
		term = strings.TrimSpace(strings.TrimPrefix(term, "!"))
	}

	stageName, predicate, ok := strings.Cut(term, ".")
	if !ok {
		return false
	}

	succeeded, failed := outcome(strings.TrimSpace(stageName))
	var result bool
	switch strings.TrimSpace(predicate) {
	case "success":
		result = succeeded
	case "failed":
		result = failed
	default:
		result = false
	}

	if negate {
		return !result
	}
	return result
}
